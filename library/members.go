package library

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// MemberStore owns member profiles. A profile is provisioned explicitly by the
// identity collaborator when a user is created; there are no implicit hooks.
type MemberStore struct {
	db    *Database
	clock Clock
}

// NewMemberStore creates a MemberStore backed by db.
func NewMemberStore(db *Database, clock Clock) *MemberStore {
	return &MemberStore{db: db, clock: clock}
}

var memberColumns = []string{
	"m.user_id", "m.username", "m.membership_date", "m.is_active", "m.phone", "m.address",
	"(SELECT COUNT(*) FROM checkouts c WHERE c.member_id = m.user_id AND c.is_returned = 0) AS current_checkouts",
	"(SELECT COUNT(*) FROM checkouts c WHERE c.member_id = m.user_id) AS total_checkouts",
	"m.date_created", "m.date_updated",
}

func memberSelect() sq.SelectBuilder {
	return sq.Select(memberColumns...).From("member_profiles m")
}

// EnsureProfile creates the profile for in.UserID if it does not exist yet and
// returns the stored profile. Calling it again for the same user is a no-op.
func (s *MemberStore) EnsureProfile(ctx context.Context, in MemberInput) (*MemberProfile, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if err := Validate(in); err != nil {
		return nil, err
	}

	now := nowUTC(s.clock)
	err := s.db.inTx(ctx, "ensure profile", func(tx *sqlx.Tx) error {
		query, args, err := sq.Insert("member_profiles").
			Columns("user_id", "username", "membership_date", "is_active", "phone", "address", "date_created", "date_updated").
			Values(in.UserID, in.Username, dateOnly(now), true, in.Phone, in.Address, now, now).
			Suffix("ON CONFLICT(user_id) DO NOTHING").
			ToSql()
		if err != nil {
			return errors.Wrap(err, "build insert")
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return mapConstraint(err, "insert profile")
	})
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, in.UserID)
}

// GetProfile returns the profile of userID with its checkout counts.
func (s *MemberStore) GetProfile(ctx context.Context, userID string) (*MemberProfile, error) {
	return getMember(ctx, s.db.db, userID)
}

// UpdateProfile applies patch to the profile of userID.
func (s *MemberStore) UpdateProfile(ctx context.Context, userID string, patch MemberPatch) (*MemberProfile, error) {
	if patch.Phone != nil && *patch.Phone != "" && !ValidPhone(*patch.Phone) {
		return nil, validationError("phone_number", `phone number must be entered in the format "+999999999"`)
	}

	err := s.db.inTx(ctx, "update profile", func(tx *sqlx.Tx) error {
		if _, err := getMember(ctx, tx, userID); err != nil {
			return err
		}
		set := map[string]any{"date_updated": nowUTC(s.clock)}
		if patch.Phone != nil {
			set["phone"] = *patch.Phone
		}
		if patch.Address != nil {
			set["address"] = *patch.Address
		}
		if patch.IsActive != nil {
			set["is_active"] = *patch.IsActive
		}
		query, args, err := sq.Update("member_profiles").SetMap(set).Where(sq.Eq{"user_id": userID}).ToSql()
		if err != nil {
			return errors.Wrap(err, "build update")
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return errors.Wrap(err, "update profile")
	})
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, userID)
}

// ListMembers returns all profiles, most recent membership first.
func (s *MemberStore) ListMembers(ctx context.Context) ([]*MemberProfile, error) {
	query, args, err := memberSelect().OrderBy("m.membership_date DESC", "m.user_id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}
	out := []*MemberProfile{}
	if err := s.db.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, errors.Wrap(err, "list members")
	}
	return out, nil
}

// DeleteProfile removes the profile and its returned checkout history, as when
// the owning user identity is deleted. Members with open checkouts cannot be removed.
func (s *MemberStore) DeleteProfile(ctx context.Context, userID string) error {
	return s.db.inTx(ctx, "delete profile", func(tx *sqlx.Tx) error {
		m, err := getMember(ctx, tx, userID)
		if err != nil {
			return err
		}
		if m.CurrentCheckouts > 0 {
			return conflictError("member %s has %d open checkout(s)", userID, m.CurrentCheckouts)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM member_profiles WHERE user_id = ?`, userID)
		return errors.Wrap(err, "delete profile")
	})
}

func getMember(ctx context.Context, q sqlx.QueryerContext, userID string) (*MemberProfile, error) {
	query, args, err := memberSelect().Where(sq.Eq{"m.user_id": userID}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}
	var m MemberProfile
	if err := sqlx.GetContext(ctx, q, &m, query, args...); err != nil {
		return nil, mapConstraint(err, "member "+userID)
	}
	return &m, nil
}

func requireActiveMember(ctx context.Context, q sqlx.QueryerContext, userID string) error {
	var active bool
	err := sqlx.GetContext(ctx, q, &active, `SELECT is_active FROM member_profiles WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError("member %s: not found", userID)
	}
	if err != nil {
		return errors.Wrap(err, "load member")
	}
	if !active {
		return validationError("member_id", "membership is not active")
	}
	return nil
}
