package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"carkey/internal/middleware"
	"carkey/internal/models"
	"carkey/internal/repository"
)

// RecordService exposes one admin-managed table to staff.
type RecordService[T any] struct {
	repo repository.RecordRepository[T]
	// fields maps JSON keys accepted on update to column names.
	fields   map[string]string
	validate func(*T) error
	// changed runs after a write with the row as it was and as it is; either may be nil.
	changed func(ctx context.Context, before, after *T)
}

func requireStaff(actor Actor) error {
	if !actor.Authenticated() {
		return models.NewUnauthorizedError("Authentication required")
	}
	if !actor.IsStaff {
		return models.NewForbiddenError("Admin access required")
	}
	return nil
}

func (s *RecordService[T]) Resource() string { return s.repo.Resource() }

func (s *RecordService[T]) List(ctx context.Context, actor Actor, limit, offset int) ([]*T, int64, error) {
	if err := requireStaff(actor); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *RecordService[T]) Get(ctx context.Context, actor Actor, id uint) (*T, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *RecordService[T]) Create(ctx context.Context, actor Actor, record *T) (*T, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if s.validate != nil {
		if err := s.validate(record); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	s.notifyChanged(ctx, nil, record)
	return record, nil
}

// Update applies the known keys of body. Unknown keys are ignored.
func (s *RecordService[T]) Update(ctx context.Context, actor Actor, id uint, body map[string]interface{}) (*T, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	known := make(map[string]interface{}, len(body))
	columns := make(map[string]interface{}, len(body))
	for key, value := range body {
		if col, ok := s.fields[key]; ok {
			known[key] = value
			columns[col] = value
		}
	}
	if s.validate != nil {
		merged := *before
		raw, err := json.Marshal(known)
		if err != nil {
			return nil, models.NewValidationError("Invalid request body")
		}
		if err := json.Unmarshal(raw, &merged); err != nil {
			return nil, models.NewValidationError("Invalid request body")
		}
		if err := s.validate(&merged); err != nil {
			return nil, err
		}
	}
	after, err := s.repo.Update(ctx, id, columns)
	if err != nil {
		return nil, err
	}
	s.notifyChanged(ctx, before, after)
	return after, nil
}

func (s *RecordService[T]) Delete(ctx context.Context, actor Actor, id uint) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.notifyChanged(ctx, before, nil)
	return nil
}

func (s *RecordService[T]) notifyChanged(ctx context.Context, before, after *T) {
	if s.changed != nil {
		s.changed(ctx, before, after)
	}
}

// AdminRecords bundles the staff-only record resources.
type AdminRecords struct {
	Scores     *RecordService[models.Score]
	Errors     *RecordService[models.ErrorLog]
	Analyses   *RecordService[models.Analysis]
	Recommends *RecordService[models.Recommend]
	BestBoards *RecordService[models.BestBoard]
}

// RecordRepositories are the tables behind AdminRecords.
type RecordRepositories struct {
	Scores     repository.RecordRepository[models.Score]
	Errors     repository.RecordRepository[models.ErrorLog]
	Analyses   repository.RecordRepository[models.Analysis]
	Recommends repository.RecordRepository[models.Recommend]
	BestBoards repository.RecordRepository[models.BestBoard]
}

// NewAdminRecords wires the record services. Recommend edits recount the
// affected boards through boards.
func NewAdminRecords(repos RecordRepositories, boards *BoardService) *AdminRecords {
	return &AdminRecords{
		Scores: &RecordService[models.Score]{
			repo:   repos.Scores,
			fields: map[string]string{"user": "user_id", "value": "value"},
			validate: func(s *models.Score) error {
				return requireIDs("user", s.UserID)
			},
		},
		Errors: &RecordService[models.ErrorLog]{
			repo:   repos.Errors,
			fields: map[string]string{"code": "code", "message": "message"},
			validate: func(e *models.ErrorLog) error {
				if e.Code == "" {
					return models.NewValidationError("code is required")
				}
				return nil
			},
		},
		Analyses: &RecordService[models.Analysis]{
			repo: repos.Analyses,
			fields: map[string]string{
				"user":         "user_id",
				"total_price":  "total_price",
				"original_img": "original_img",
				"scratch_img":  "scratch_img",
				"crushed_img":  "crushed_img",
				"natural_img":  "natural_img",
				"analyze_date": "analyze_date",
			},
			validate: func(a *models.Analysis) error {
				if a.AnalyzeDate.IsZero() {
					a.AnalyzeDate = time.Now().UTC().Truncate(24 * time.Hour)
				}
				return requireIDs("user", a.UserID)
			},
		},
		Recommends: &RecordService[models.Recommend]{
			repo:   repos.Recommends,
			fields: map[string]string{"board": "board_id", "user": "user_id"},
			validate: func(r *models.Recommend) error {
				return requireIDs("board", r.BoardID, "user", r.UserID)
			},
			changed: func(ctx context.Context, before, after *models.Recommend) {
				if boards == nil {
					return
				}
				seen := map[uint]bool{}
				for _, r := range []*models.Recommend{before, after} {
					if r == nil || seen[r.BoardID] {
						continue
					}
					seen[r.BoardID] = true
					if _, err := boards.Recount(ctx, r.BoardID); err != nil && !repository.IsNotFound(err) {
						logWarn(ctx, "failed to recount recommends", "board_id", r.BoardID, "error", err)
					}
				}
			},
		},
		BestBoards: &RecordService[models.BestBoard]{
			repo:   repos.BestBoards,
			fields: map[string]string{"board": "board_id"},
			validate: func(b *models.BestBoard) error {
				return requireIDs("board", b.BoardID)
			},
		},
	}
}

// requireIDs takes name, id pairs and rejects zero ids.
func requireIDs(pairs ...interface{}) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if id, _ := pairs[i+1].(uint); id == 0 {
			return models.NewValidationError(fmt.Sprintf("%s is required", pairs[i]))
		}
	}
	return nil
}

const errorLogTimeout = 5 * time.Second

// ErrorRecorder writes server errors to error_logs in the background.
type ErrorRecorder struct {
	repo repository.RecordRepository[models.ErrorLog]
	wg   sync.WaitGroup
}

func NewErrorRecorder(repo repository.RecordRepository[models.ErrorLog]) *ErrorRecorder {
	return &ErrorRecorder{repo: repo}
}

// Record queues one error_logs row. It never blocks the caller.
func (r *ErrorRecorder) Record(code, message string) {
	if r == nil || r.repo == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), errorLogTimeout)
		defer cancel()
		entry := &models.ErrorLog{Code: truncateRunes(code, 50), Message: message}
		if err := r.repo.Create(ctx, entry); err != nil {
			middleware.Logger.Error("failed to record error log", "code", code, "error", err)
		}
	}()
}

// Wait blocks until queued records are written.
func (r *ErrorRecorder) Wait() {
	if r != nil {
		r.wg.Wait()
	}
}
