package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/storage"
)

// WeightOwnerFinder is the single data-store question ownership validation
// needs answered.
type WeightOwnerFinder interface {
	FindWeightOwner(ctx context.Context, weightID string) (string, error)
}

// RequestContext carries the request fields logged with security events.
type RequestContext struct {
	IP        string
	UserAgent string
}

// OwnershipValidator cross-checks that a derivative path really belongs to the
// user a token claims. Two independent checks, both mandatory:
//
//  1. the owner embedded in the path's first segment must match the claim —
//     a cheap tamper check that costs no database round trip;
//  2. the weight record named by the path's second segment must belong to the
//     claimed owner per the data store — the actual source of truth.
//
// The path check alone is never sufficient: path construction is in-process
// today, but the database is what actually assigns ownership.
type OwnershipValidator struct {
	weights WeightOwnerFinder
	log     *zap.Logger
}

func NewOwnershipValidator(weights WeightOwnerFinder, log *zap.Logger) *OwnershipValidator {
	return &OwnershipValidator{weights: weights, log: log}
}

func (v *OwnershipValidator) Validate(ctx context.Context, relPath, claimedOwnerID string, req RequestContext) error {
	pathOwner, weightID, err := storage.SplitPath(relPath)
	if err != nil {
		return err
	}

	if pathOwner != claimedOwnerID {
		v.log.Warn("security: path owner does not match token owner",
			zap.String("path", relPath),
			zap.String("path_owner", pathOwner),
			zap.String("claimed_owner", claimedOwnerID),
			zap.String("ip", req.IP),
			zap.String("user_agent", req.UserAgent),
		)
		return errs.ErrAccessDenied
	}

	actualOwner, err := v.weights.FindWeightOwner(ctx, weightID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			v.log.Warn("security: weight record for photo path not found",
				zap.String("path", relPath),
				zap.String("weight_id", weightID),
				zap.String("claimed_owner", claimedOwnerID),
				zap.String("ip", req.IP),
				zap.String("user_agent", req.UserAgent),
			)
			return errs.ErrNotFound
		}
		return fmt.Errorf("ownership lookup: %w", err)
	}

	if actualOwner != claimedOwnerID {
		v.log.Error("security: record owner does not match token owner",
			zap.String("path", relPath),
			zap.String("weight_id", weightID),
			zap.String("record_owner", actualOwner),
			zap.String("claimed_owner", claimedOwnerID),
			zap.String("ip", req.IP),
			zap.String("user_agent", req.UserAgent),
		)
		return errs.ErrAccessDenied
	}

	return nil
}
