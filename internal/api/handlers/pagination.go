package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func parseLimit(s string) int {
	limit, err := strconv.Atoi(s)
	if err != nil || limit <= 0 || limit > maxPageSize {
		return defaultPageSize
	}
	return limit
}

// formatCursor encodes a listing position as <unix-millis>_<id>.
func formatCursor(createdAt time.Time, id utils.SixID) string {
	return fmt.Sprintf("%d_%s", createdAt.UnixMilli(), id)
}

func parseCursor(s string) (*store.Cursor, error) {
	millis, idStr, ok := strings.Cut(s, "_")
	if !ok {
		return nil, fmt.Errorf("cursor must look like <millis>_<id>")
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := utils.ParseSixID(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &store.Cursor{CreatedAt: time.UnixMilli(ms).UTC(), ID: id}, nil
}
