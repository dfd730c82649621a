package service

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/berfenger/sib2mqtt/internal/core/domain"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/go-playground/validator.v9"
)

const (
	FIELD_INTERFACE         = "interface"
	FIELD_BAUD_RATE         = "baud_rate"
	FIELD_ADD_BINARY_SENSOR = "add_binary_sensor"
	FIELD_NAME              = "name"
	FIELD_ADDRESS           = "address"
	FIELD_DEVICE_CLASS      = "device_class"
)

type setupForm struct {
	Interface string `mapstructure:"interface" validate:"required"`
	BaudRate  int    `mapstructure:"baud_rate" validate:"required,gt=0"`
}

type initForm struct {
	AddBinarySensor bool `mapstructure:"add_binary_sensor"`
}

type addBinarySensorForm struct {
	Name        string `mapstructure:"name" validate:"required"`
	Address     string `mapstructure:"address" validate:"required,bus_address"`
	DeviceClass string `mapstructure:"device_class" validate:"device_class"`
}

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
	})
	if err := v.RegisterValidation("bus_address", func(fl validator.FieldLevel) bool {
		return domain.ValidateAddress(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("device_class", func(fl validator.FieldLevel) bool {
		return domain.ValidateDeviceClass(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// decodeForm decodes user input onto out, which carries the defaults, and
// validates it. A non-nil map is a set of per-field form errors.
func decodeForm(input map[string]any, out any) map[string]string {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.DecodeHookFuncType(integralFloatHook),
		Result:           out,
	})
	if err != nil {
		return map[string]string{domain.FORM_ERROR_BASE: domain.FORM_ERROR_INVALID_VALUE}
	}
	if err := decoder.Decode(input); err != nil {
		return map[string]string{domain.FORM_ERROR_BASE: domain.FORM_ERROR_INVALID_VALUE}
	}
	if err := formValidator.Struct(out); err != nil {
		return formErrors(err)
	}
	return nil
}

// integralFloatHook refuses to truncate a JSON number with a fraction into an
// integer field.
func integralFloatHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Float32 && from.Kind() != reflect.Float64 {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	if f := reflect.ValueOf(data).Float(); f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", data)
	}
	return data, nil
}

func formErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{domain.FORM_ERROR_BASE: domain.FORM_ERROR_INVALID_VALUE}
	}
	errs := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			errs[fe.Field()] = domain.FORM_ERROR_REQUIRED
		case "bus_address":
			errs[fe.Field()] = domain.FORM_ERROR_INVALID_ADDRESS
		case "device_class":
			errs[fe.Field()] = domain.FORM_ERROR_INVALID_DEVICE_CLASS
		default:
			errs[fe.Field()] = domain.FORM_ERROR_INVALID_VALUE
		}
	}
	return errs
}
