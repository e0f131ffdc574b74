package notes

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/models"
)

const maxNameLength = 200

var errHiddenSlug = errors.New("must not start with '.'")

// slugRule rejects names whose file-system form would be hidden or empty.
var slugRule = validation.By(func(v any) error {
	name, _ := v.(string)
	slug := models.Slug(name)
	if strings.HasPrefix(slug, ".") {
		return errHiddenSlug
	}
	if strings.Trim(slug, "-") == "" {
		return errors.New("must contain at least one letter or digit")
	}
	return nil
})

// validateName checks a notebook or note name.
func validateName(op, what, name string) error {
	err := validation.Validate(name,
		validation.Required.Error("must not be empty"),
		validation.RuneLength(1, maxNameLength),
		slugRule,
	)
	if err != nil {
		return apperr.Validation(op, what+" name "+err.Error())
	}
	return nil
}
