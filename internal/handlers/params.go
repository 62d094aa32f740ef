package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var knownStatuses = map[string]bool{
	models.WithdrawalPending:    true,
	models.WithdrawalApproved:   true,
	models.WithdrawalProcessing: true,
	models.WithdrawalCompleted:  true,
	models.WithdrawalRejected:   true,
	models.WithdrawalCancelled:  true,
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// Parse status, washer_id, limit and offset query params
// status accepts a comma separated list
func listOpts(r *http.Request) (repository.ListWithdrawalsOpts, map[string]string) {
	q := r.URL.Query()
	opts := repository.ListWithdrawalsOpts{Limit: defaultListLimit}
	fields := make(map[string]string)

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if !knownStatuses[s] {
				fields["status"] = fmt.Sprintf("Unknown status %q", s)
				break
			}
			opts.Statuses = append(opts.Statuses, s)
		}
	}

	if raw := q.Get("washer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fields["washer_id"] = "Invalid value"
		} else {
			opts.WasherID = &id
		}
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		switch {
		case err != nil || limit <= 0:
			fields["limit"] = "Must be a positive number"
		case limit > maxListLimit:
			opts.Limit = maxListLimit
		default:
			opts.Limit = limit
		}
	}

	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			fields["offset"] = "Must be zero or a positive number"
		} else {
			opts.Offset = offset
		}
	}

	return opts, fields
}
