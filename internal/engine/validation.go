package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/go-playground/validator/v10"
)

// newValidator builds the transaction validator with the custom merchant
// rule and json field names in violations.
func newValidator() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("merchant", validateMerchant)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// validateMerchant requires a raw merchant with at least one visible rune.
func validateMerchant(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func (e *Engine) validateTransaction(index int, txn model.Transaction) error {
	err := e.validate.Struct(txn)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	verr := &common.ValidationError{
		TransactionID: txn.ID,
		Index:         index,
	}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, common.FieldViolation{
			Field: fe.Field(),
			Rule:  fe.Tag(),
		})
	}
	return verr
}
