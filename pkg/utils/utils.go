package utils

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// IsEmpty checks if a string is empty.
func IsEmpty(s string) bool {
	return s == ""
}

// GenerateTraceID generates a new UUID trace id.
func GenerateTraceID() string {
	return uuid.New().String()
}

// ParseStructEnv binds env vars to struct fields using a mapstructure tag
func ParseStructEnv(cfg interface{}) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if err := viper.BindEnv(tag); err != nil {
			return err
		}
	}
	return viper.Unmarshal(cfg)
}

// FormatConfigErrors turns validator failures into one readable error listing
// every offending field and its rule, logging each along the way.
func FormatConfigErrors(logger *zap.Logger, err error, cfg interface{}) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make([]string, 0, len(validationErrors))
	t := reflect.TypeOf(cfg)
	for _, fe := range validationErrors {
		envName := fe.StructField()
		if f, found := t.FieldByName(fe.StructField()); found {
			if tag := f.Tag.Get("mapstructure"); tag != "" {
				envName = tag
			}
		}
		logger.Error("invalid_config_value",
			zap.String("field", envName),
			zap.String("rule", fe.Tag()),
			zap.String("param", fe.Param()))
		fields = append(fields, fmt.Sprintf("%s (%s)", envName, fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
}
