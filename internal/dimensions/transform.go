package dimensions

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Sanity bounds for coordinates inside the operating area.
const (
	minAbsLat = 18.0
	maxAbsLat = 54.0
	minAbsLng = 72.0
	maxAbsLng = 135.0
)

// Point is a parsed store location.
type Point struct {
	Lng float64
	Lat float64
}

// String renders the canonical "lng,lat" form.
func (p Point) String() string {
	return strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}

func latOK(v float64) bool {
	a := math.Abs(v)
	return a >= minAbsLat && a <= maxAbsLat
}

func lngOK(v float64) bool {
	a := math.Abs(v)
	return a >= minAbsLng && a <= maxAbsLng
}

// ParseLocation reads a two-number location string. "lat,lng" is tried
// first, then "lng,lat"; the ranges do not overlap so at most one order
// fits. Anything else yields ok=false.
func ParseLocation(s string) (p Point, ok bool) {
	s = strings.NewReplacer("，", ",", " ", "").Replace(strings.TrimSpace(s))
	a, b, found := strings.Cut(s, ",")
	if !found {
		return Point{}, false
	}
	x, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return Point{}, false
	}
	y, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return Point{}, false
	}

	switch {
	case latOK(x) && lngOK(y):
		return Point{Lng: y, Lat: x}, true
	case lngOK(x) && latOK(y):
		return Point{Lng: x, Lat: y}, true
	}
	return Point{}, false
}

// Store statuses.
const (
	StatusOpen        = "open"
	StatusPreparing   = "preparing"
	StatusProspecting = "prospecting"
	StatusSuspended   = "suspended"
	StatusClosed      = "closed"
	StatusUnknown     = "unknown"
)

// MapStatus maps the POS shop state onto a store status.
func MapStatus(state *int) string {
	if state == nil {
		return StatusUnknown
	}
	switch *state {
	case 0:
		return StatusSuspended
	case 1:
		return StatusOpen
	case 2:
		return StatusClosed
	default:
		return StatusUnknown
	}
}

// StateCode returns the warehouse state code of a status, or nil when
// the status has none.
func StateCode(status string) *int16 {
	var c int16
	switch status {
	case StatusOpen:
		c = 0
	case StatusProspecting:
		c = 1
	case StatusPreparing:
		c = 2
	default:
		return nil
	}
	return &c
}

// ProspectStatus is the store status of a projected prospective site.
func ProspectStatus(approvalState *int) string {
	if approvalState != nil && *approvalState == 1 {
		return StatusPreparing
	}
	return StatusProspecting
}

// ApprovalLabel names a Rg_SeekShop approval state.
func ApprovalLabel(approvalState *int) string {
	if approvalState == nil {
		return "unreviewed"
	}
	switch *approvalState {
	case 1:
		return "approved"
	case 2:
		return "rejected"
	default:
		return "unreviewed"
	}
}

// Name and phone source priorities; lower wins.
const (
	PriorityPOS      = 1
	PriorityArchive  = 2
	PriorityMini     = 3
	PriorityOrderTel = 5

	noPriority = math.MaxInt
)

// staffMarkers flag names that belong to staff accounts.
var staffMarkers = []string{"经理", "店长", "manager", "store-head"}

// minPhoneDigits is the shortest phone number accepted.
const minPhoneDigits = 6

// Vetter rejects names and phones that belong to store staff.
type Vetter struct {
	directorNames  map[string]struct{}
	directorPhones map[string]struct{}
}

// NewVetter builds a Vetter from the known director names and phones.
func NewVetter(names, phones map[string]struct{}) *Vetter {
	if names == nil {
		names = map[string]struct{}{}
	}
	if phones == nil {
		phones = map[string]struct{}{}
	}
	return &Vetter{directorNames: names, directorPhones: phones}
}

// Name returns the trimmed name and whether it may be adopted.
func (v *Vetter) Name(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if _, ok := v.directorNames[name]; ok {
		return "", false
	}
	lower := strings.ToLower(name)
	for _, m := range staffMarkers {
		if strings.Contains(lower, m) {
			return "", false
		}
	}
	return name, true
}

// Phone returns the trimmed phone and whether it may be adopted.
func (v *Vetter) Phone(phone string) (string, bool) {
	phone = strings.TrimSpace(phone)
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < minPhoneDigits {
		return "", false
	}
	if _, ok := v.directorPhones[phone]; ok {
		return "", false
	}
	return phone, true
}

// Profile accumulates what is known about one external customer id.
type Profile struct {
	CustomerID string
	Name       string
	Phone      string
	VipTel     string
	ShopID     int64
	FromPOS    bool

	namePriority  int
	phonePriority int
}

// NewProfile returns an empty profile for id.
func NewProfile(id string) *Profile {
	return &Profile{CustomerID: id, namePriority: noPriority, phonePriority: noPriority}
}

// Offer proposes a name and phone from a source of the given priority.
// Each value is adopted when it passes the vetter and no source with a
// smaller priority has supplied one.
func (p *Profile) Offer(v *Vetter, priority int, name, phone string) {
	if priority < p.namePriority {
		if n, ok := v.Name(name); ok {
			p.Name, p.namePriority = n, priority
		}
	}
	if priority < p.phonePriority {
		if ph, ok := v.Phone(phone); ok {
			p.Phone, p.phonePriority = ph, priority
		}
	}
}

// Source names the system the profile is attributed to.
func (p *Profile) Source() string {
	if p.FromPOS {
		return "pos"
	}
	return "mini"
}
