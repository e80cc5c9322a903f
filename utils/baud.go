package utils

import (
	"github.com/pkg/errors"
)

// ValidateBaudRate returns an error unless baudRate is one of validBaudRates.
func ValidateBaudRate(validBaudRates []int, baudRate int) error {
	for _, val := range validBaudRates {
		if val == baudRate {
			return nil
		}
	}
	return errors.Errorf("baud_rate %d must be one of %v", baudRate, validBaudRates)
}
