package demodata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/ids"
)

// ScratchCollection holds the disposable document written by preflight checks.
const ScratchCollection = "_preflight"

// DefaultElevatedRoles are the operator roles allowed to seed or reset.
var DefaultElevatedRoles = []string{"admin", "super_admin", "brand_admin"}

// Preflight verifies that an operator may write and delete before a run starts.
type Preflight struct {
	store    docstore.Store
	elevated map[string]bool
	now      func() time.Time
	log      *zap.Logger
}

func newPreflight(store docstore.Store, roles []string, now func() time.Time, log *zap.Logger) *Preflight {
	p := &Preflight{store: store, elevated: make(map[string]bool, len(roles)), now: now, log: log}
	for _, r := range roles {
		p.elevated[strings.ToLower(strings.TrimSpace(r))] = true
	}
	return p
}

// CheckWrite confirms the operator role and an empirical scratch write + delete.
func (p *Preflight) CheckWrite(ctx context.Context, operatorID string) error {
	if err := p.checkRole(ctx, operatorID); err != nil {
		return err
	}
	return p.checkScratch(ctx, operatorID)
}

// CheckDelete is CheckWrite plus a tagged read of every teardown target.
func (p *Preflight) CheckDelete(ctx context.Context, operatorID string, collections []string) error {
	if err := p.CheckWrite(ctx, operatorID); err != nil {
		return err
	}
	for _, name := range collections {
		if _, err := p.store.Query(ctx, name, docstore.Query{OnlyTagged: true, Limit: 1}); err != nil {
			return permissionDenied("read "+name, err)
		}
	}
	return nil
}

func (p *Preflight) checkRole(ctx context.Context, operatorID string) error {
	if strings.TrimSpace(operatorID) == "" {
		return &PermissionDeniedError{Check: "role", Code: codes.Unauthenticated, Message: "operator identity is required"}
	}
	snap, err := p.store.Get(ctx, docstore.Ref{Collection: CollectionUsers, ID: operatorID})
	if errors.Is(err, docstore.ErrNotFound) {
		return &PermissionDeniedError{Check: "role", Code: codes.PermissionDenied, Message: "operator has no user document", Err: err}
	}
	if err != nil {
		return permissionDenied("role", err)
	}
	role, _ := snap.Data["role"].(string)
	if !p.elevated[strings.ToLower(role)] {
		return &PermissionDeniedError{
			Check:   "role",
			Code:    codes.PermissionDenied,
			Message: fmt.Sprintf("role %q is not elevated", role),
		}
	}
	return nil
}

func (p *Preflight) checkScratch(ctx context.Context, operatorID string) error {
	ref := docstore.Ref{Collection: ScratchCollection, ID: ids.New()}
	err := p.store.Set(ctx, ref, docstore.Document{
		docstore.TagField: true,
		"operatorId":      operatorID,
		"createdAt":       p.now().UTC(),
	}, docstore.SetOptions{})
	if err != nil {
		return permissionDenied("scratch write", err)
	}
	if err := p.store.Delete(ctx, ref); err != nil {
		p.log.Warn("preflight scratch document left behind", zap.String("ref", ref.String()), zap.Error(err))
		return permissionDenied("scratch delete", err)
	}
	return nil
}
