package dimensions

import (
	"context"
	"slices"
	"time"

	"github.com/hotdog2030/hotdog-etl/internal/identity"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

const upsertCustomerSQL = `
INSERT INTO customer_profiles (customer_id, customer_name, phone, vip_tel, shop_id, source,
                               delflag, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, now(), now())
ON CONFLICT (customer_id) WHERE delflag = 0 DO UPDATE SET
    customer_name = EXCLUDED.customer_name,
    phone         = EXCLUDED.phone,
    vip_tel       = EXCLUDED.vip_tel,
    shop_id       = EXCLUDED.shop_id,
    source        = EXCLUDED.source,
    updated_at    = now()`

type profileSet struct {
	vetter   *Vetter
	profiles map[string]*Profile
	// last order time per customer, for vip_tel and home store
	lastSeen map[string]time.Time
}

func (ps *profileSet) get(id string) *Profile {
	p, ok := ps.profiles[id]
	if !ok {
		p = NewProfile(id)
		ps.profiles[id] = p
	}
	return p
}

// LoadCustomers builds one profile per external customer id from the
// member tables and the open ids on paid orders, choosing name and phone
// by source priority.
func (l *Loader) LoadCustomers(ctx context.Context) (*stats.Counts, error) {
	counts := stats.NewCounts(warehouse.TableCustomers)

	names, phones, err := l.pos.Directors(ctx)
	if err != nil {
		return counts, err
	}
	ps := &profileSet{
		vetter:   NewVetter(names, phones),
		profiles: map[string]*Profile{},
		lastSeen: map[string]time.Time{},
	}

	if err := l.offerMembers(ctx, ps, l.pos, source.XcxUser{}.TableName(), PriorityPOS); err != nil {
		return counts, err
	}
	if l.pos.HasTable(source.ArchivedCustomerTable) {
		if err := l.offerMembers(ctx, ps, l.pos, source.ArchivedCustomerTable, PriorityArchive); err != nil {
			return counts, err
		}
	}
	if l.mini != nil {
		if err := l.offerMembers(ctx, ps, l.mini, source.XcxUser{}.TableName(), PriorityMini); err != nil {
			return counts, err
		}
	}
	for _, r := range []*source.Reader{l.pos, l.mini} {
		if r == nil {
			continue
		}
		if err := l.offerOrders(ctx, ps, r); err != nil {
			return counts, err
		}
	}

	ids := make([]string, 0, len(ps.profiles))
	for id := range ps.profiles {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	w := l.writer(counts)
	for i, id := range ids {
		p := ps.profiles[id]
		var shopID *int64
		if p.ShopID != 0 {
			if sid, ok := l.ids.Resolve(identity.Store, p.ShopID); ok {
				shopID = &sid
			}
		}
		if err := w.Add(ctx, int64(i), upsertCustomerSQL,
			p.CustomerID, emptyNil(p.Name), emptyNil(p.Phone), emptyNil(p.VipTel), shopID, p.Source()); err != nil {
			return counts, err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return counts, err
	}

	if err := l.ids.Hydrate(ctx, l.wh, identity.Customer); err != nil {
		return counts, err
	}
	return counts, nil
}

func (l *Loader) offerMembers(ctx context.Context, ps *profileSet, r *source.Reader, table string, priority int) error {
	n := 0
	err := r.Customers(ctx, table, func(u *source.XcxUser) error {
		openID := source.Str(u.OpenID)
		if openID == "" {
			return nil
		}
		p := ps.get(openID)
		if r.System() == source.POS {
			p.FromPOS = true
		}
		name := source.Str(u.RealName)
		if name == "" {
			name = source.Str(u.NickName)
		}
		p.Offer(ps.vetter, priority, name, source.Str(u.Tel))
		if p.ShopID == 0 && u.ShopID != nil {
			p.ShopID = *u.ShopID
		}
		n++
		return nil
	})
	logging.Debug().Str("source", string(r.System())).Str("table", table).Int("members", n).Msg("Customer source read")
	return err
}

func (l *Loader) offerOrders(ctx context.Context, ps *profileSet, r *source.Reader) error {
	return r.OrderCustomers(ctx, func(o *source.Order) error {
		openID := source.Str(o.OpenID)
		p := ps.get(openID)
		if r.System() == source.POS {
			p.FromPOS = true
		}
		tel := source.Str(o.VipTel)
		p.Offer(ps.vetter, PriorityOrderTel, "", tel)

		if last, ok := ps.lastSeen[openID]; !ok || o.RecordTime.After(last) {
			ps.lastSeen[openID] = o.RecordTime
			if tel != "" {
				p.VipTel = tel
			}
			if o.ShopID != 0 {
				p.ShopID = o.ShopID
			}
		}
		return nil
	})
}

func emptyNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
