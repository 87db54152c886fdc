package db

import (
	"errors"
	"time"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsDuplicateKeyError is a function that checks if an error is a duplicate key error.
type IsDuplicateKeyError func(err error) bool

const DefaultMaxRetries = 3

// Try executes an insert that generates a fresh random id on every attempt,
// retrying on id collisions in either supported store.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsAnyDuplicateKeyError)
}

// WithRetries executes op up to maxRetries+1 times, retrying only while
// isDuplicateKey classifies the failure as a key collision.
func WithRetries(op Operation, maxRetries int, isDuplicateKey IsDuplicateKeyError) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !isDuplicateKey(err) {
			break
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// IsAnyDuplicateKeyError matches duplicate key errors from MongoDB and PostgreSQL.
func IsAnyDuplicateKeyError(err error) bool {
	return IsMongoDuplicateKeyError(err) || IsPostgresUniqueViolation(err)
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	return false
}

// IsPostgresUniqueViolation checks for SQLSTATE 23505.
func IsPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
