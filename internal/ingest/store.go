package ingest

import (
	"context"
	"errors"

	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/swing"
)

// Store adapts the database to Sink and SessionResolver.
type Store struct {
	DB *db.DB
}

func (s Store) RecordReading(ctx context.Context, sessionID, device string, r swing.SensorReading) error {
	return s.DB.RecordReading(ctx, &db.Reading{
		SessionID:     sessionID,
		DeviceCode:    device,
		SensorReading: r,
	})
}

func (s Store) Session(ctx context.Context, id string) (*SessionInfo, error) {
	var (
		sess *db.Session
		err  error
	)
	if id == "" {
		sess, err = s.DB.ActiveSession(ctx)
		if errors.Is(err, db.ErrSessionNotFound) {
			return nil, nil
		}
	} else {
		sess, err = s.DB.GetSession(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return &SessionInfo{ID: sess.ID, Start: sess.StartTime, Location: sess.Location()}, nil
}
