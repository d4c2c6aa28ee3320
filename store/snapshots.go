package store

import (
	"context"
	"strconv"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InboxSnapshot is the Bun model for one persisted inbox snapshot. Each
// profile keeps at most one row; saves overwrite in place.
type InboxSnapshot struct {
	bun.BaseModel `bun:"table:inbox_snapshots,alias:snp"`

	ID        uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ProfileID int64     `bun:"profile_id,notnull,unique" json:"profile_id"`
	Payload   []byte    `bun:"payload,notnull" json:"payload,omitempty"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Snapshots persists inbox snapshots keyed by profile id.
type Snapshots struct {
	repo repository.Repository[*InboxSnapshot]
	db   *bun.DB
}

// NewSnapshots ensures the snapshot schema exists and returns the repository.
func NewSnapshots(ctx context.Context, db *bun.DB) (*Snapshots, error) {
	_, err := db.NewCreateTable().
		Model((*InboxSnapshot)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	handlers := repository.ModelHandlers[*InboxSnapshot]{
		NewRecord: func() *InboxSnapshot {
			return &InboxSnapshot{}
		},
		GetID: func(record *InboxSnapshot) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *InboxSnapshot, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "profile_id"
		},
		GetIdentifierValue: func(record *InboxSnapshot) string {
			if record == nil {
				return ""
			}
			return strconv.FormatInt(record.ProfileID, 10)
		},
	}

	return &Snapshots{
		repo: repository.NewRepository(db, handlers),
		db:   db,
	}, nil
}

func (s *Snapshots) SaveSnapshot(ctx context.Context, profileID int64, payload []byte) error {
	existing, err := s.repo.GetByIdentifier(ctx, strconv.FormatInt(profileID, 10))
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			return err
		}

		record := &InboxSnapshot{
			ID:        uuid.New(),
			ProfileID: profileID,
			Payload:   payload,
			UpdatedAt: time.Now(),
		}
		_, err = s.repo.Create(ctx, record)
		return err
	}

	existing.Payload = payload
	existing.UpdatedAt = time.Now()
	_, err = s.repo.Update(ctx, existing, repository.UpdateByID(existing.ID.String()))
	return err
}

func (s *Snapshots) LoadSnapshot(ctx context.Context, profileID int64) ([]byte, time.Time, error) {
	record, err := s.repo.GetByIdentifier(ctx, strconv.FormatInt(profileID, 10))
	if err != nil {
		return nil, time.Time{}, err
	}

	return record.Payload, record.UpdatedAt, nil
}
