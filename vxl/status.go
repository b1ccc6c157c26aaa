// Copyright 2026 The auto-lens Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vxl

import "fmt"

// Status is a native XL driver status code.
type Status int16

const (
	StatusOK             Status = 0
	StatusPending        Status = 1
	StatusQueueEmpty     Status = 10
	StatusQueueFull      Status = 11
	StatusTxNotPossible  Status = 12
	StatusNoLicense      Status = 14
	StatusWrongParameter Status = 101
	StatusHWNotReady     Status = 120
	StatusHWNotPresent   Status = 129
	StatusCannotOpen     Status = 201
	StatusDLLNotFound    Status = 203
	StatusNotSupported   Status = 205
)

// String maps the native code to a descriptive name. Unknown codes
// render generically instead of failing silently.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "XL_SUCCESS"
	case StatusPending:
		return "XL_PENDING"
	case StatusQueueEmpty:
		return "QUEUE_EMPTY"
	case StatusQueueFull:
		return "QUEUE_FULL"
	case StatusTxNotPossible:
		return "TX_NOT_POSSIBLE"
	case StatusNoLicense:
		return "NO_LICENSE"
	case StatusWrongParameter:
		return "WRONG_PARAMETER"
	case StatusHWNotReady:
		return "HW_NOT_READY"
	case StatusHWNotPresent:
		return "HW_NOT_PRESENT"
	case StatusCannotOpen:
		return "CANNOT_OPEN_DRIVER"
	case StatusDLLNotFound:
		return "DLL_NOT_FOUND"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	}
	return fmt.Sprintf("XL_ERR_%d", int16(s))
}

// Fatal reports whether the status indicates dead hardware, the
// class of errors the session reacts to with an auto-disconnect.
func (s Status) Fatal() bool {
	switch s {
	case StatusHWNotReady, StatusHWNotPresent, StatusCannotOpen, StatusDLLNotFound:
		return true
	}
	return false
}

// hwTypeName maps a vendor hardware type code to its family name.
func hwTypeName(hwType int) string {
	switch hwType {
	case 1:
		return "Virtual"
	case 2:
		return "CANcardX"
	case 15:
		return "CANcardXL"
	case 21:
		return "CANcaseXL"
	case 25:
		return "CANboardXL"
	case 41:
		return "VN7600"
	case 45:
		return "VN8900"
	case 55:
		return "VN1610"
	case 57:
		return "VN1630"
	case 59:
		return "VN1640"
	case 63:
		return "VN1611"
	case 65:
		return "VN5610"
	case 66:
		return "VN5620"
	case 81:
		return "VN7610"
	case 83:
		return "VN7572"
	case 101:
		return "VN5610A"
	case 102:
		return "VN7640"
	case 105:
		return "VN4610"
	case 112:
		return "VN1530"
	case 113:
		return "VN1531"
	case 120:
		return "VN1670"
	}
	return fmt.Sprintf("HW_0x%02x", hwType)
}
