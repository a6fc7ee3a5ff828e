package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	var err error
	validate, translator, err = newValidator()
	if err != nil {
		panic("init validator: " + err.Error())
	}
}

// newValidator валидатор с английскими сообщениями и именами полей из json-тегов
func newValidator() (*validator.Validate, ut.Translator, error) {
	v := validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	trans, found := uni.GetTranslator("en")
	if !found {
		return nil, nil, errors.New("translator for locale en not found")
	}
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, nil, fmt.Errorf("register translations: %w", err)
	}

	// Имена полей в ошибках берём из json-тегов
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v, trans, nil
}

// validateStruct проверяет теги validate и возвращает apperr.ValidationError
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate input: %w", err)
	}

	verr := apperr.NewValidation("invalid input")
	for _, fe := range fieldErrs {
		verr.WithField(fe.Field(), fe.Translate(translator))
	}
	return verr
}

// validateInterval проверяет что start < end
func validateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.NewValidation("start and end time are required")
	}
	if !start.Before(end) {
		return apperr.NewValidation("start time must be before end time").
			WithField("end_time", "must be after start_time")
	}
	return nil
}
