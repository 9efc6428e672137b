package dimensions

import (
	"context"
	"fmt"

	"github.com/hotdog2030/hotdog-etl/internal/identity"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

const upsertStoreSQL = `
INSERT INTO stores (id, store_code, store_name, store_type, status, state,
                    province, city, district, address, location, longitude, latitude,
                    open_time, close_time, rent_amount, passenger_flow,
                    meituan_id, eleme_id, dianping_id, douyin_id, is_self,
                    delflag, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
        $18, $19, $20, $21, $22, 0, $23, now())
ON CONFLICT (id) DO UPDATE SET
    store_name     = EXCLUDED.store_name,
    store_type     = EXCLUDED.store_type,
    status         = EXCLUDED.status,
    state          = EXCLUDED.state,
    province       = EXCLUDED.province,
    city           = EXCLUDED.city,
    district       = EXCLUDED.district,
    address        = EXCLUDED.address,
    location       = EXCLUDED.location,
    longitude      = EXCLUDED.longitude,
    latitude       = EXCLUDED.latitude,
    open_time      = EXCLUDED.open_time,
    close_time     = EXCLUDED.close_time,
    rent_amount    = EXCLUDED.rent_amount,
    passenger_flow = EXCLUDED.passenger_flow,
    meituan_id     = EXCLUDED.meituan_id,
    eleme_id       = EXCLUDED.eleme_id,
    dianping_id    = EXCLUDED.dianping_id,
    douyin_id      = EXCLUDED.douyin_id,
    is_self        = EXCLUDED.is_self,
    delflag        = 0,
    updated_at     = now()
WHERE stores.store_code = EXCLUDED.store_code`

const upsertProspectSQL = `
INSERT INTO stores (id, store_code, store_name, store_type, status, state, address,
                    location, longitude, latitude, is_self, delflag, created_at, updated_at)
VALUES ($1, $2, $3, 'franchise', $4, $5, $6, $7, $8, $9, false, 0, $10, now())
ON CONFLICT (id) DO UPDATE SET
    store_name = EXCLUDED.store_name,
    status     = EXCLUDED.status,
    state      = EXCLUDED.state,
    address    = EXCLUDED.address,
    location   = EXCLUDED.location,
    longitude  = EXCLUDED.longitude,
    latitude   = EXCLUDED.latitude,
    delflag    = 0,
    updated_at = now()
WHERE stores.store_code = EXCLUDED.store_code`

// Candidates written before they had their own id range sit on positive
// ids that a new POS store may claim. Move them below zero; their site
// scores are recomputed by the next analytics refresh.
const relocateCandidatesSQL = `
CREATE TEMP TABLE candidate_moves ON COMMIT DROP AS
    SELECT id AS old_id, -CAST(substr(store_code, 4) AS BIGINT) AS new_id
    FROM stores
    WHERE id > 0 AND store_code ~ '^RG_[0-9]+$';
DELETE FROM fact_site_score WHERE candidate_id IN (SELECT old_id FROM candidate_moves);
UPDATE rg_seek_shop SET store_id = NULL WHERE store_id IN (SELECT old_id FROM candidate_moves);
UPDATE stores s SET id = m.new_id FROM candidate_moves m WHERE s.id = m.old_id;`

const upsertSeekShopSQL = `
INSERT INTO rg_seek_shop (id, shop_name, address, location, longitude, latitude,
                          approval_state, amount, store_id, delflag, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, now())
ON CONFLICT (id) DO UPDATE SET
    shop_name      = EXCLUDED.shop_name,
    address        = EXCLUDED.address,
    location       = EXCLUDED.location,
    longitude      = EXCLUDED.longitude,
    latitude       = EXCLUDED.latitude,
    approval_state = EXCLUDED.approval_state,
    amount         = EXCLUDED.amount,
    store_id       = EXCLUDED.store_id,
    updated_at     = now()`

// storeLocation returns the location columns of a raw location string.
// An unparseable string is kept verbatim with null coordinates.
func storeLocation(raw *string, kind string, id int64) (loc *string, lng, lat any) {
	if raw == nil || *raw == "" {
		return nil, nil, nil
	}
	p, ok := ParseLocation(*raw)
	if !ok {
		logging.Debug().Str("kind", kind).Int64("id", id).Str("location", *raw).Msg("Unparseable location")
		return raw, nil, nil
	}
	s := p.String()
	return &s, warehouse.FloatNumeric(p.Lng, 6), warehouse.FloatNumeric(p.Lat, 6)
}

// relocateCandidates moves candidate stores left on positive ids into
// the candidate id range.
func (l *Loader) relocateCandidates(ctx context.Context) error {
	var moved int64
	if err := l.wh.QueryRow(ctx,
		`SELECT count(*) FROM stores WHERE id > 0 AND store_code ~ '^RG_[0-9]+$'`).Scan(&moved); err != nil {
		return fmt.Errorf("count legacy candidates: %w", err)
	}
	if moved == 0 {
		return nil
	}
	if _, err := l.wh.Exec(ctx, relocateCandidatesSQL); err != nil {
		return fmt.Errorf("relocate candidates: %w", err)
	}
	logging.Info().Int64("stores", moved).Msg("Moved candidate stores to the candidate id range")
	return nil
}

// LoadStores upserts the non-deleted POS stores, preserving source ids,
// and advances the store identity past them.
func (l *Loader) LoadStores(ctx context.Context) (*stats.Counts, error) {
	counts := stats.NewCounts(warehouse.TableStores)
	if err := l.relocateCandidates(ctx); err != nil {
		return counts, err
	}
	w := l.writer(counts)
	w.OnApplied = func(id int64) error {
		return l.ids.Register(identity.Store, id, id)
	}

	err := l.pos.Shops(ctx, func(s *source.Shop) error {
		status := MapStatus(s.State)
		loc, lng, lat := storeLocation(s.Location, "store", s.ID)
		storeType := "direct"
		isSelf := s.IsSelf == nil || *s.IsSelf != 0
		if !isSelf {
			storeType = "franchise"
		}
		return w.Add(ctx, s.ID, upsertStoreSQL,
			s.ID, identity.StoreCode(s.ID), s.ShopName, storeType, status, StateCode(status),
			nullStr(s.Province), nullStr(s.City), nullStr(s.District), nullStr(s.ShopAddress),
			loc, lng, lat, nullStr(s.OpenTime), nullStr(s.CloseTime),
			warehouse.NullNumeric(s.RentAmount), s.PassengerFlow,
			nullStr(s.MeituanID), nullStr(s.ElemeID), nullStr(s.DianpingID), nullStr(s.DouyinID),
			isSelf, s.RecordTime)
	})
	if err == nil {
		err = w.Flush(ctx)
	}
	if err != nil {
		return counts, err
	}

	if err := warehouse.SyncIdentity(ctx, l.wh, warehouse.TableStores); err != nil {
		return counts, err
	}
	return counts, nil
}

// LoadRgSeekShopAsStores copies the prospective sites into rg_seek_shop
// and projects each one into stores as RG_<id>.
func (l *Loader) LoadRgSeekShopAsStores(ctx context.Context) ([]*stats.Counts, error) {
	storeCounts := stats.NewCounts(warehouse.TableStores)
	seekCounts := stats.NewCounts(warehouse.TableSeekShops)

	var sites []source.SeekShop
	if err := l.pos.SeekShops(ctx, func(s *source.SeekShop) error {
		sites = append(sites, *s)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := l.relocateCandidates(ctx); err != nil {
		return nil, err
	}
	l.ids.ResetKind(identity.Candidate)

	w := l.writer(storeCounts)
	w.OnApplied = func(id int64) error {
		return l.ids.Register(identity.Candidate, id, identity.CandidateStoreID(id))
	}
	for i := range sites {
		s := &sites[i]
		status := ProspectStatus(s.ApprovalState)
		loc, lng, lat := storeLocation(s.Location, "seek_shop", s.ID)
		if err := w.Add(ctx, s.ID, upsertProspectSQL,
			identity.CandidateStoreID(s.ID), identity.CandidateCode(s.ID), s.ShopName, status, StateCode(status),
			nullStr(s.ShopAddress), loc, lng, lat, s.RecordTime); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return nil, err
	}

	sw := l.writer(seekCounts)
	for i := range sites {
		s := &sites[i]
		var storeID *int64
		if id, ok := l.ids.Resolve(identity.Candidate, s.ID); ok {
			storeID = &id
		}
		loc, lng, lat := storeLocation(s.Location, "seek_shop", s.ID)
		if err := sw.Add(ctx, s.ID, upsertSeekShopSQL,
			s.ID, s.ShopName, nullStr(s.ShopAddress), loc, lng, lat,
			ApprovalLabel(s.ApprovalState), warehouse.NullNumeric(s.Amount), storeID, s.RecordTime); err != nil {
			return nil, err
		}
	}
	if err := sw.Flush(ctx); err != nil {
		return nil, err
	}

	return []*stats.Counts{storeCounts, seekCounts}, nil
}
