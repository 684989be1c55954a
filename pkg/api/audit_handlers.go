package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/session"
)

func parseQueryTime(r *http.Request, key string) (*time.Time, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid time for query param %s: %s", domain.ErrInvalidInput, key, str)
	}
	return &t, nil
}

// parseSearchFilter builds a search filter from query parameters. action may
// be repeated or comma separated.
func parseSearchFilter(r *http.Request) (audit.SearchFilter, error) {
	var filter audit.SearchFilter
	var err error

	if filter.StartTime, err = parseQueryTime(r, "start_time"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = parseQueryTime(r, "end_time"); err != nil {
		return filter, err
	}
	if filter.ActorUserID, err = httputil.ParseQueryUUID(r, "actor_user_id"); err != nil {
		return filter, err
	}
	if filter.BypassOnly, err = httputil.ParseQueryBool(r, "bypass_only", false); err != nil {
		return filter, err
	}
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", 0); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	if filter.Offset < 0 {
		return filter, fmt.Errorf("%w: offset cannot be negative", domain.ErrInvalidInput)
	}

	for _, v := range r.URL.Query()["action"] {
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				filter.Actions = append(filter.Actions, audit.Action(a))
			}
		}
	}
	if status := httputil.ParseQueryString(r, "status", ""); status != "" {
		st := audit.Status(status)
		filter.Status = &st
	}
	filter.TargetType = audit.TargetType(httputil.ParseQueryString(r, "target_type", ""))
	filter.TargetID = httputil.ParseQueryString(r, "target_id", "")

	if filter.StartTime != nil && filter.EndTime != nil && filter.EndTime.Before(*filter.StartTime) {
		return filter, fmt.Errorf("%w: end_time is before start_time", domain.ErrInvalidInput)
	}
	return filter, nil
}

// searchAudit returns the current tenant's audit records. format=csv or
// format=ndjson streams an export instead of the JSON page.
func (s *Server) searchAudit(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())

	format, err := audit.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	filter, err := parseSearchFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	records, err := s.auditStore.Search(r.Context(), sc.TenantID(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}

	if format == audit.ExportFormatJSON {
		httputil.WriteSuccess(w, AuditSearchResponse{
			Records: records,
			Limit:   filter.EffectiveLimit(),
			Offset:  filter.Offset,
		})
		return
	}

	body, err := audit.Export(records, format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit-%s.%s", sc.TenantID(), format))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
