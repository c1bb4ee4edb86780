// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"fmt"
)

// Unset is the string representation of a Variable that holds no value.
const Unset = "n/a"

// Variable represents a generic type wrapper that holds a value and tracks whether it was set.
type Variable[T any] struct {
	value T
	isset bool
}

// NewVariable creates and returns a new Variable instance initialized with the provided value.
func NewVariable[T any](value T) Variable[T] {
	return Variable[T]{
		isset: true,
		value: value,
	}
}

// Reset clears the value of the Variable and marks it as unset.
func (v *Variable[T]) Reset() {
	var newVal T
	v.value = newVal
	v.isset = false
}

// Set assigns the provided value to the Variable and marks it as set.
func (v *Variable[T]) Set(val T) {
	v.value = val
	v.isset = true
}

// Value retrieves the current value stored in the Variable. An unset Variable returns the zero
// value of T.
func (v Variable[T]) Value() T {
	return v.value
}

// Get returns the value and whether it was set.
func (v Variable[T]) Get() (T, bool) {
	return v.value, v.isset
}

// IsSet returns true if the Variable has been set.
func (v Variable[T]) IsSet() bool {
	return v.isset
}

// String returns a string representation of the Variable, or Unset.
func (v Variable[T]) String() string {
	if !v.isset {
		return Unset
	}
	return fmt.Sprint(v.value)
}
