package dimensions

import (
	"testing"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		wantOK bool
		lng    float64
		lat    float64
	}{
		{"lat,lng", "31.23,121.47", true, 121.47, 31.23},
		{"lng,lat", "121.47,31.23", true, 121.47, 31.23},
		{"spaces", " 39.9042 , 116.4074 ", true, 116.4074, 39.9042},
		{"full-width comma", "121.47，31.23", true, 121.47, 31.23},
		{"southern bound", "18,109.5", true, 109.5, 18},
		{"lat too low", "10.5,121.47", false, 0, 0},
		{"lng too high", "31.23,150", false, 0, 0},
		{"both lat-like", "31.23,40.1", false, 0, 0},
		{"single number", "121.47", false, 0, 0},
		{"garbage", "abc,def", false, 0, 0},
		{"empty", "", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ParseLocation(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && (p.Lng != tt.lng || p.Lat != tt.lat) {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tt.lng, tt.lat, p.Lng, p.Lat)
			}
		})
	}
}

func TestPointString(t *testing.T) {
	p := Point{Lng: 121.47, Lat: 31.23}
	if got := p.String(); got != "121.470000,31.230000" {
		t.Errorf("Expected lng,lat form, got %s", got)
	}
}

func TestMapStatus(t *testing.T) {
	i := func(v int) *int { return &v }

	tests := []struct {
		state *int
		want  string
	}{
		{i(0), StatusSuspended},
		{i(1), StatusOpen},
		{i(2), StatusClosed},
		{i(3), StatusUnknown},
		{i(-1), StatusUnknown},
		{nil, StatusUnknown},
	}

	for _, tt := range tests {
		if got := MapStatus(tt.state); got != tt.want {
			t.Errorf("MapStatus(%v): expected %s, got %s", tt.state, tt.want, got)
		}
	}
}

func TestStateCode(t *testing.T) {
	for status, want := range map[string]int16{StatusOpen: 0, StatusProspecting: 1, StatusPreparing: 2} {
		got := StateCode(status)
		if got == nil || *got != want {
			t.Errorf("StateCode(%s): expected %d, got %v", status, want, got)
		}
	}
	for _, status := range []string{StatusClosed, StatusSuspended, StatusUnknown} {
		if StateCode(status) != nil {
			t.Errorf("StateCode(%s): expected nil", status)
		}
	}
}

func TestProspectStatus(t *testing.T) {
	approved, rejected, unreviewed := 1, 2, 0

	if got := ProspectStatus(&approved); got != StatusPreparing {
		t.Errorf("Expected preparing, got %s", got)
	}
	for _, s := range []*int{&rejected, &unreviewed, nil} {
		if got := ProspectStatus(s); got != StatusProspecting {
			t.Errorf("Expected prospecting, got %s", got)
		}
	}
	if ApprovalLabel(&approved) != "approved" || ApprovalLabel(&rejected) != "rejected" || ApprovalLabel(nil) != "unreviewed" {
		t.Error("Unexpected approval labels")
	}
}

func TestVetter(t *testing.T) {
	v := NewVetter(
		map[string]struct{}{"王强": {}},
		map[string]struct{}{"13900000000": {}},
	)

	names := []struct {
		in string
		ok bool
	}{
		{"李雷", true},
		{" 韩梅梅 ", true},
		{"王强", false},
		{"张经理", false},
		{"店长小刘", false},
		{"Store Manager Li", false},
		{"store-head Wu", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range names {
		if _, ok := v.Name(tt.in); ok != tt.ok {
			t.Errorf("Name(%q): expected %v", tt.in, tt.ok)
		}
	}

	phones := []struct {
		in string
		ok bool
	}{
		{"13812345678", true},
		{"021-6234", true},
		{"12345", false},
		{"13900000000", false},
		{"", false},
	}
	for _, tt := range phones {
		if _, ok := v.Phone(tt.in); ok != tt.ok {
			t.Errorf("Phone(%q): expected %v", tt.in, tt.ok)
		}
	}
}

func TestProfilePriority(t *testing.T) {
	v := NewVetter(map[string]struct{}{"王强": {}}, nil)
	p := NewProfile("oXYZ")

	p.Offer(v, PriorityOrderTel, "", "13800000005")
	if p.Phone != "13800000005" {
		t.Fatalf("Expected order phone, got %q", p.Phone)
	}

	p.Offer(v, PriorityMini, "Mini Name", "13800000003")
	if p.Name != "Mini Name" || p.Phone != "13800000003" {
		t.Errorf("Expected mini values to win over order tel, got %q %q", p.Name, p.Phone)
	}

	// a better source with a rejected name keeps the previous name
	p.Offer(v, PriorityPOS, "王强", "13800000001")
	if p.Name != "Mini Name" {
		t.Errorf("Expected director name to be rejected, got %q", p.Name)
	}
	if p.Phone != "13800000001" {
		t.Errorf("Expected POS phone, got %q", p.Phone)
	}

	// a worse source never overrides
	p.Offer(v, PriorityArchive, "Archive Name", "13800000002")
	if p.Phone != "13800000001" {
		t.Errorf("Expected POS phone to stay, got %q", p.Phone)
	}
	if p.Name != "Archive Name" {
		t.Errorf("Expected archive name to beat mini name, got %q", p.Name)
	}
}

func TestProfileSource(t *testing.T) {
	p := NewProfile("x")
	if p.Source() != "mini" {
		t.Errorf("Expected mini, got %s", p.Source())
	}
	p.FromPOS = true
	if p.Source() != "pos" {
		t.Errorf("Expected pos, got %s", p.Source())
	}
}

func TestBuildRegions(t *testing.T) {
	regions, cities := BuildRegions([]Place{
		{"上海市", "上海市"},
		{"江苏省", "苏州市"},
		{"江苏省", "南京市"},
		{"江苏省", "苏州市"},
		{"", "无省份"},
		{"浙江省", ""},
	})

	if len(cities) != 3 {
		t.Fatalf("Expected 3 cities, got %d", len(cities))
	}
	if len(regions) != 6 {
		t.Fatalf("Expected 3 provinces + 3 cities, got %d regions", len(regions))
	}

	byCode := map[string]Region{}
	for _, r := range regions {
		byCode[r.Code] = r
	}
	if byCode["PROV_001"].Level != 1 || byCode["PROV_001"].ParentCode != "" {
		t.Errorf("Unexpected province: %+v", byCode["PROV_001"])
	}
	for _, c := range cities {
		r := byCode[c.RegionCode]
		if r.Level != 2 || r.Name != c.Name {
			t.Errorf("City %s has bad region %+v", c.Name, r)
		}
		parent := byCode[r.ParentCode]
		if parent.Name != c.Province || parent.Level != 1 {
			t.Errorf("City %s has bad parent %+v", c.Name, parent)
		}
	}

	again, _ := BuildRegions([]Place{{"浙江省", ""}, {"江苏省", "南京市"}, {"上海市", "上海市"}, {"江苏省", "苏州市"}})
	for i := range regions {
		if regions[i] != again[i] {
			t.Errorf("Codes are not stable: %+v vs %+v", regions[i], again[i])
		}
	}
}
