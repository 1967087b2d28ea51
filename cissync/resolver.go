package cissync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// RefResolver finds reference entities by natural key and auto-provisions a
// minimal placeholder on first sight so foreign-key-bearing target rows can
// always be constructed. Auto-provisioning is an explicit, audited
// capability: every placeholder creation lands in the autoprovision log with
// the run that caused it.
//
// Resolution never fails a row for a missing reference; an empty natural key
// resolves to "no entity" and the caller decides whether that matters.
type RefResolver struct {
	store  Store
	logger *slog.Logger
}

func NewRefResolver(store Store, logger *slog.Logger) *RefResolver {
	return &RefResolver{store: store, logger: logger}
}

// ResolveBranch returns the branch for baCode, creating a placeholder branch
// on a miss. The region link is derived from the leading character of the
// ba_code when such a region exists locally.
func (r *RefResolver) ResolveBranch(ctx context.Context, rc *RunContext, baCode string, sourceOrgID *int64) (*Branch, error) {
	baCode = strings.TrimSpace(baCode)
	if baCode == "" {
		return nil, nil
	}

	branch, err := r.store.GetBranchByBACode(ctx, baCode)
	if err == nil {
		return branch, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup branch %q: %w", baCode, err)
	}

	var regionCode *string
	if region, rerr := r.store.GetRegionByCode(ctx, baCode[:1]); rerr == nil {
		regionCode = &region.Code
	} else if !errors.Is(rerr, ErrNotFound) {
		return nil, fmt.Errorf("lookup region for branch %q: %w", baCode, rerr)
	}

	created := &Branch{
		BACode:      baCode,
		BranchCode:  &baCode, // the 7-digit code is unknown until administered
		Name:        "Branch " + baCode,
		RegionCode:  regionCode,
		SourceOrgID: sourceOrgID,
	}
	if err := r.store.CreateBranch(ctx, created); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// Another writer created it between lookup and insert.
			return r.store.GetBranchByBACode(ctx, baCode)
		}
		return nil, fmt.Errorf("create branch %q: %w", baCode, err)
	}
	r.audit(ctx, rc, RefKindBranch, baCode, "branch missing for ba_code observed in source row")
	return created, nil
}

// ResolveStatus returns the installation status for code, creating a
// placeholder on a miss.
func (r *RefResolver) ResolveStatus(ctx context.Context, rc *RunContext, code string) (*InstallationStatus, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	status, err := r.store.GetInstallationStatusByCode(ctx, code)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup installation status %q: %w", code, err)
	}

	created := &InstallationStatus{
		Code:        code,
		Name:        "Status " + code,
		Description: "Auto-provisioned during sync",
	}
	if err := r.store.CreateInstallationStatus(ctx, created); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return r.store.GetInstallationStatusByCode(ctx, code)
		}
		return nil, fmt.Errorf("create installation status %q: %w", code, err)
	}
	r.audit(ctx, rc, RefKindInstallationStatus, code, "status code observed in source row")
	return created, nil
}

// ResolveInstallationType returns the installation type for code, creating a
// placeholder on a miss. name overrides the placeholder name when non-empty.
func (r *RefResolver) ResolveInstallationType(ctx context.Context, rc *RunContext, code, name string) (*InstallationType, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	typ, err := r.store.GetInstallationTypeByCode(ctx, code)
	if err == nil {
		return typ, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup installation type %q: %w", code, err)
	}

	if name == "" {
		name = "Installation Type " + code
	}
	created := &InstallationType{
		Code:        code,
		Name:        name,
		Description: "Auto-provisioned during sync",
	}
	if err := r.store.CreateInstallationType(ctx, created); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return r.store.GetInstallationTypeByCode(ctx, code)
		}
		return nil, fmt.Errorf("create installation type %q: %w", code, err)
	}
	r.audit(ctx, rc, RefKindInstallationType, code, "installation type code observed in source row")
	return created, nil
}

// ResolveMeterSize returns the meter size for code, creating a placeholder
// on a miss.
func (r *RefResolver) ResolveMeterSize(ctx context.Context, rc *RunContext, code string) (*MeterSize, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	size, err := r.store.GetMeterSizeByCode(ctx, code)
	if err == nil {
		return size, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup meter size %q: %w", code, err)
	}

	created := &MeterSize{
		Code:        code,
		Name:        "Meter Size " + code,
		Description: "Auto-provisioned during sync",
	}
	if err := r.store.CreateMeterSize(ctx, created); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return r.store.GetMeterSizeByCode(ctx, code)
		}
		return nil, fmt.Errorf("create meter size %q: %w", code, err)
	}
	r.audit(ctx, rc, RefKindMeterSize, code, "meter size code observed in source row")
	return created, nil
}

// audit records the auto-provision trail. Audit failures are logged, never
// propagated: losing an audit row must not fail the data row.
func (r *RefResolver) audit(ctx context.Context, rc *RunContext, kind, key, reason string) {
	ap := AutoProvision{EntityKind: kind, NaturalKey: key, Reason: reason}
	if rc != nil {
		ap.RunID = rc.Run.ID
		ap.FlowKind = rc.Run.FlowKind
	}
	if err := r.store.RecordAutoProvision(ctx, ap); err != nil {
		r.logger.Warn("auto-provision audit write failed",
			"entity_kind", kind, "natural_key", key, "error", err)
	}
	r.logger.Info("auto-provisioned reference entity", "entity_kind", kind, "natural_key", key)
}
