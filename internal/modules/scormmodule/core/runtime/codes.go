package runtime

import (
	"strconv"
	"strings"
)

// ErrorCode is a SCORM run-time error code as reported by GetLastError
type ErrorCode int

const (
	NoError                         ErrorCode = 0
	GeneralException                ErrorCode = 101
	ContentInstanceTerminated       ErrorCode = 104
	TerminationBeforeInitialization ErrorCode = 112
	TerminationAfterTermination     ErrorCode = 113
	StoreDataBeforeInitialization   ErrorCode = 132
	StoreDataAfterTermination       ErrorCode = 133
	GeneralArgumentError            ErrorCode = 201
	GeneralGetFailure               ErrorCode = 301
	GeneralSetFailure               ErrorCode = 351
	UndefinedDataModelElement       ErrorCode = 401
	UnimplementedDataModelElement   ErrorCode = 402
	DataModelElementIsReadOnly      ErrorCode = 404
	DataModelElementTypeMismatch    ErrorCode = 406
)

type codeText struct {
	message    string
	diagnostic string
}

var codeTexts = map[ErrorCode]codeText{
	NoError: {"No Error",
		"The previous call completed successfully."},
	GeneralException: {"General Exception",
		"The run-time environment failed while handling the call."},
	ContentInstanceTerminated: {"Content Instance Terminated",
		"Initialize was called after the session had already been terminated."},
	TerminationBeforeInitialization: {"Termination Before Initialization",
		"Terminate was called before Initialize; the session is not running."},
	TerminationAfterTermination: {"Termination After Termination",
		"Terminate was called on a session that is already terminated."},
	StoreDataBeforeInitialization: {"Store Data Before Initialization",
		"SetValue was called before Initialize."},
	StoreDataAfterTermination: {"Store Data After Termination",
		"SetValue was called after Terminate."},
	GeneralArgumentError: {"General Argument Error",
		"The call received an argument it cannot use."},
	GeneralGetFailure: {"General Get Failure",
		"GetValue was called without a data model element name."},
	GeneralSetFailure: {"General Set Failure",
		"SetValue was called without a data model element name."},
	UndefinedDataModelElement: {"Undefined Data Model Element",
		"The data model element is not defined by SCORM."},
	UnimplementedDataModelElement: {"Unimplemented Data Model Element",
		"The data model element is not implemented by this run-time environment."},
	DataModelElementIsReadOnly: {"Data Model Element Is Read Only",
		"The data model element cannot be set."},
	DataModelElementTypeMismatch: {"Data Model Element Type Mismatch",
		"The value is not part of the element's vocabulary."},
}

// String returns the SCORM error string for the code, or "" if unknown
func (c ErrorCode) String() string {
	return codeTexts[c].message
}

// Diagnostic returns the generic diagnostic text for the code, or "" if unknown
func (c ErrorCode) Diagnostic() string {
	return codeTexts[c].diagnostic
}

// ParseErrorCode reads the string form content passes to GetErrorString
func ParseErrorCode(s string) (ErrorCode, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return ErrorCode(n), true
}
