package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func principal(c *fiber.Ctx) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return p, nil
}

func userPrincipal(c *fiber.Ctx) (*domain.User, error) {
	p, ok := auth.PrincipalFromContext(c)
	if !ok || p.User == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return p.User, nil
}

func staffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	p, ok := auth.PrincipalFromContext(c)
	if !ok || !p.IsStaff() {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return p.Staff, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

func parseBoolQuery(c *fiber.Ctx, key string) *bool {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return &parsed
		}
	}
	return nil
}

func parseListQuery(c *fiber.Ctx, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

// parseTimeField parses an optional RFC3339 value. Malformed input is a
// validation error rather than being silently dropped.
func parseTimeField(field string, raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return nil, apperrors.NewValidationError(field+" must be an RFC3339 timestamp", map[string]any{field: *raw})
	}
	return &t, nil
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	page := parseIntQuery(c, "page", 1)
	limit = parseIntQuery(c, "page_size", defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, (page - 1) * limit
}

func parseTicketFilter(c *fiber.Ctx) (service.TicketListFilter, error) {
	var filter service.TicketListFilter
	for _, s := range parseListQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(s))
	}
	for _, p := range parseListQuery(c, "priority") {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(p))
	}
	for _, cat := range parseListQuery(c, "category") {
		filter.Categories = append(filter.Categories, domain.TicketCategory(cat))
	}
	filter.SearchTerm = optionalQuery(c, "search")

	var err error
	if filter.CreatedFrom, err = parseTimeField("created_from", optionalQuery(c, "created_from")); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTimeField("created_to", optionalQuery(c, "created_to")); err != nil {
		return filter, err
	}
	filter.Limit, filter.Offset = pagination(c)
	return filter, nil
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": data})
}

func respond(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"data": data})
}
