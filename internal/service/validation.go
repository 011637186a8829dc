package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"teamchat/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs struct tag validation and reports the first failing
// field as an invalid-argument error.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed on the '%s' rule", domain.ErrInvalidArgument, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
}

type messageRef struct {
	ActorID   string `json:"actor_id" validate:"required"`
	MessageID string `json:"message_id" validate:"required,max=64"`
}

type channelRef struct {
	ChannelID string `json:"channel_id" validate:"required,max=64"`
}

type pageRequest struct {
	ChannelID string `json:"channel_id" validate:"required,max=64"`
	Page      int    `json:"page" validate:"gte=1"`
	PageSize  int    `json:"page_size" validate:"gte=1"`
}

type channelInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type channelPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}
