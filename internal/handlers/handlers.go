// Package handlers exposes the services over the JSON HTTP API.
package handlers

import (
	"errors"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"pharmacy/internal/apperr"
	"pharmacy/internal/middleware"
	"pharmacy/internal/models"
	"pharmacy/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var (
	staffRoles    = []string{models.RoleAdmin, models.RoleEmployee, models.RolePharmacist}
	reviewerRoles = []string{models.RoleAdmin, models.RolePharmacist}
	adminRoles    = []string{models.RoleAdmin}
)

// Guards are the middleware chains protected routes are mounted behind.
type Guards struct {
	Auth fiber.Handler
}

// Staff admits any back-office role.
func (g Guards) Staff() []fiber.Handler {
	return []fiber.Handler{g.Auth, middleware.RequireRoles(staffRoles...)}
}

func chain(guards []fiber.Handler, h fiber.Handler) []fiber.Handler {
	return append(append([]fiber.Handler{}, guards...), h)
}

// bahraini mobile or landline, optionally with the country code
var bhPhonePattern = regexp.MustCompile(`^(\+973)?[13679]\d{7}$`)

// NewValidator returns a validator that reports fields by their JSON name and
// knows the bh_phone rule.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bh_phone", func(fl validator.FieldLevel) bool {
		return bhPhonePattern.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
	})
	return v
}

// parseBody decodes the request body into dst and runs its validate tags.
func parseBody(c *fiber.Ctx, v *validator.Validate, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Invalid("body", "Cannot parse request body")
	}
	return validateStruct(v, dst)
}

func validateStruct(v *validator.Validate, dst any) error {
	err := v.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := &apperr.ValidationError{}
	for _, fe := range fieldErrs {
		ve.Add(fieldPath(fe), fieldMessage(fe))
	}
	return ve
}

// fieldPath drops the root struct name from the namespace: "RegisterInput.address.city" -> "address.city".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "bh_phone":
		return "Must be a valid Bahraini phone number"
	case "min":
		if fe.Kind() == reflect.String {
			return "Must be at least " + fe.Param() + " characters"
		}
		return "Must contain at least " + fe.Param() + " item(s)"
	case "max":
		return "Must be at most " + fe.Param() + " characters"
	case "gte":
		return "Must be at least " + fe.Param()
	case "lte":
		return "Must be at most " + fe.Param()
	case "oneof":
		return "Must be one of: " + fe.Param()
	}
	return "Invalid value"
}

// respondError maps service errors onto status codes. Anything unclassified is
// logged and answered with a generic 500.
func respondError(c *fiber.Ctx, err error) error {
	if ve, ok := apperr.AsValidation(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  ve.Fields,
		})
	}

	var appErr *apperr.Error
	message := ""
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		return errorJSON(c, fiber.StatusUnauthorized, message, "Authentication required")
	case errors.Is(err, apperr.ErrForbidden):
		return errorJSON(c, fiber.StatusForbidden, message, "You do not have permission to perform this action")
	case errors.Is(err, apperr.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, message, "Resource not found")
	case errors.Is(err, apperr.ErrConflict):
		return errorJSON(c, fiber.StatusConflict, message, "Request conflicts with the current state")
	case errors.Is(err, apperr.ErrUpstream):
		slog.ErrorContext(c.UserContext(), "upstream failure", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": "A partner service is unavailable, please try again later",
		})
	}

	slog.ErrorContext(c.UserContext(), "request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Internal server error",
	})
}

func errorJSON(c *fiber.Ctx, status int, message, fallback string) error {
	if message == "" {
		message = fallback
	}
	return c.Status(status).JSON(fiber.Map{"message": message})
}

// pageQuery reads pageNumber and pageSize from the query string.
func pageQuery(c *fiber.Ctx) models.PageQuery {
	return models.PageQuery{
		PageNumber: c.QueryInt("pageNumber", 1),
		PageSize:   c.QueryInt("pageSize", models.DefaultPageSize),
	}.Normalize()
}

// formUpload opens the multipart file in field. The returned closer must be
// called once the content has been consumed.
func formUpload(c *fiber.Ctx, field string) (services.Upload, func(), error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return services.Upload{}, func() {}, apperr.Invalid(field, "File is required")
	}
	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, func() {}, apperr.Invalid(field, "Cannot read uploaded file")
	}
	return services.Upload{Filename: fh.Filename, Content: f}, func() { f.Close() }, nil
}

// optionalUpload is formUpload for fields the caller may leave out.
func optionalUpload(c *fiber.Ctx, field string) (services.Upload, func(), error) {
	if _, err := c.FormFile(field); err != nil {
		return services.Upload{}, func() {}, nil
	}
	return formUpload(c, field)
}

func respondOK(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "OK"})
}
