package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qayd/backend/internal/domain"
	"qayd/backend/internal/store"
	"qayd/backend/internal/xid"
)

func (s *Service) ListZones(ctx context.Context) ([]domain.DeliveryZone, error) {
	return s.repo.ListZones(ctx)
}

func (s *Service) CreateZone(ctx context.Context, req domain.ZoneCreateRequest) (domain.DeliveryZone, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.DeliveryZone{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.DeliveryFeeCents < 0 {
		return domain.DeliveryZone{}, store.ErrInvalidRecord
	}
	if len(req.Polygon) > 0 && len(req.Polygon) < 3 {
		return domain.DeliveryZone{}, fmt.Errorf("%w: polygon needs at least three points", store.ErrInvalidRecord)
	}

	zone := domain.DeliveryZone{
		ID:               xid.New("zone"),
		Name:             req.Name,
		DeliveryFeeCents: req.DeliveryFeeCents,
		Polygon:          append([]domain.LatLng(nil), req.Polygon...),
		Active:           true,
		CreatedAt:        time.Now().UTC(),
	}
	created, err := s.repo.CreateZone(ctx, zone)
	if err != nil {
		return domain.DeliveryZone{}, err
	}

	s.logAudit(ctx, s.defaultBranchID, "zone_create", "zone", created.ID, fmt.Sprintf("name=%s,fee=%d", created.Name, created.DeliveryFeeCents))
	return *created, nil
}

func (s *Service) UpdateZone(ctx context.Context, zoneID string, req domain.ZoneUpdateRequest) (domain.DeliveryZone, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.DeliveryZone{}, fmt.Errorf("admin role required")
	}

	zoneID = strings.TrimSpace(zoneID)
	if zoneID == "" {
		return domain.DeliveryZone{}, store.ErrInvalidRecord
	}

	existing, err := s.repo.GetZoneByID(ctx, zoneID)
	if err != nil {
		return domain.DeliveryZone{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.DeliveryZone{}, store.ErrInvalidRecord
		}
		updated.Name = name
	}
	if req.DeliveryFeeCents != nil {
		if *req.DeliveryFeeCents < 0 {
			return domain.DeliveryZone{}, store.ErrInvalidRecord
		}
		updated.DeliveryFeeCents = *req.DeliveryFeeCents
	}
	if req.Polygon != nil {
		if len(*req.Polygon) > 0 && len(*req.Polygon) < 3 {
			return domain.DeliveryZone{}, fmt.Errorf("%w: polygon needs at least three points", store.ErrInvalidRecord)
		}
		updated.Polygon = append([]domain.LatLng(nil), (*req.Polygon)...)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateZone(ctx, updated)
	if err != nil {
		return domain.DeliveryZone{}, err
	}

	s.logAudit(ctx, s.defaultBranchID, "zone_update", "zone", saved.ID, fmt.Sprintf("active=%t,fee=%d", saved.Active, saved.DeliveryFeeCents))
	return *saved, nil
}

// LookupZone finds the active zone whose polygon contains the point. When
// zones overlap the cheapest fee wins, so customers are never overcharged
// by zone ordering.
func (s *Service) LookupZone(ctx context.Context, point domain.LatLng) (domain.ZoneLookupResponse, error) {
	zones, err := s.repo.ListZones(ctx)
	if err != nil {
		return domain.ZoneLookupResponse{}, err
	}

	var best *domain.DeliveryZone
	for i := range zones {
		zone := zones[i]
		if !zone.Active || !zone.Contains(point) {
			continue
		}
		if best == nil || zone.DeliveryFeeCents < best.DeliveryFeeCents {
			best = &zones[i]
		}
	}

	if best == nil {
		return domain.ZoneLookupResponse{Found: false}, nil
	}
	return domain.ZoneLookupResponse{Found: true, Zone: best}, nil
}
