package client

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// LDAP result codes per RFC 4511 appendix A, plus the client-side codes
// used for transport and decoding failures.
const (
	ResultSuccess                      = 0
	ResultOperationsError              = 1
	ResultProtocolError                = 2
	ResultTimeLimitExceeded            = 3
	ResultSizeLimitExceeded            = 4
	ResultCompareFalse                 = 5
	ResultCompareTrue                  = 6
	ResultAuthMethodNotSupported       = 7
	ResultStrongAuthRequired           = 8
	ResultReferral                     = 10
	ResultAdminLimitExceeded           = 11
	ResultUnavailableCriticalExtension = 12
	ResultConfidentialityRequired      = 13
	ResultSaslBindInProgress           = 14
	ResultNoSuchAttribute              = 16
	ResultUndefinedAttributeType       = 17
	ResultInappropriateMatching        = 18
	ResultConstraintViolation          = 19
	ResultAttributeOrValueExists       = 20
	ResultInvalidAttributeSyntax       = 21
	ResultNoSuchObject                 = 32
	ResultAliasProblem                 = 33
	ResultInvalidDNSyntax              = 34
	ResultIsLeaf                       = 35
	ResultAliasDereferencingProblem    = 36
	ResultInappropriateAuthentication  = 48
	ResultInvalidCredentials           = 49
	ResultInsufficientAccessRights     = 50
	ResultBusy                         = 51
	ResultUnavailable                  = 52
	ResultUnwillingToPerform           = 53
	ResultLoopDetect                   = 54
	ResultNamingViolation              = 64
	ResultObjectClassViolation         = 65
	ResultNotAllowedOnNonLeaf          = 66
	ResultNotAllowedOnRDN              = 67
	ResultEntryAlreadyExists           = 68
	ResultObjectClassModsProhibited    = 69
	ResultAffectsMultipleDSAs          = 71
	ResultOther                        = 80

	// Client-side codes, conventionally numbered above the protocol range.
	ResultServerDown    = 81
	ResultLocalError    = 82
	ResultEncodingError = 83
	ResultDecodingError = 84
	ResultTimeout       = 85
	ResultAuthUnknown   = 86
	ResultFilterError   = 87
	ResultUserCanceled  = 88
	ResultParamError    = 89
	ResultNoMemory      = 90
	ResultConnectError  = 91
	ResultNotSupported  = 92

	ErrorNetwork            = 200
	ErrorFilterCompile      = 201
	ErrorFilterDecompile    = 202
	ErrorDebugging          = 203
	ErrorUnexpectedMessage  = 204
	ErrorUnexpectedResponse = 205
	ErrorEmptyPassword      = 206
)

// ResultCodeMap contains string descriptions for result codes.
var ResultCodeMap = map[uint16]string{
	ResultSuccess:                      "Success",
	ResultOperationsError:              "Operations Error",
	ResultProtocolError:                "Protocol Error",
	ResultTimeLimitExceeded:            "Time Limit Exceeded",
	ResultSizeLimitExceeded:            "Size Limit Exceeded",
	ResultCompareFalse:                 "Compare False",
	ResultCompareTrue:                  "Compare True",
	ResultAuthMethodNotSupported:       "Auth Method Not Supported",
	ResultStrongAuthRequired:           "Strong Auth Required",
	ResultReferral:                     "Referral",
	ResultAdminLimitExceeded:           "Admin Limit Exceeded",
	ResultUnavailableCriticalExtension: "Unavailable Critical Extension",
	ResultConfidentialityRequired:      "Confidentiality Required",
	ResultSaslBindInProgress:           "Sasl Bind In Progress",
	ResultNoSuchAttribute:              "No Such Attribute",
	ResultUndefinedAttributeType:       "Undefined Attribute Type",
	ResultInappropriateMatching:        "Inappropriate Matching",
	ResultConstraintViolation:          "Constraint Violation",
	ResultAttributeOrValueExists:       "Attribute Or Value Exists",
	ResultInvalidAttributeSyntax:       "Invalid Attribute Syntax",
	ResultNoSuchObject:                 "No Such Object",
	ResultAliasProblem:                 "Alias Problem",
	ResultInvalidDNSyntax:              "Invalid DN Syntax",
	ResultIsLeaf:                       "Is Leaf",
	ResultAliasDereferencingProblem:    "Alias Dereferencing Problem",
	ResultInappropriateAuthentication:  "Inappropriate Authentication",
	ResultInvalidCredentials:           "Invalid Credentials",
	ResultInsufficientAccessRights:     "Insufficient Access Rights",
	ResultBusy:                         "Busy",
	ResultUnavailable:                  "Unavailable",
	ResultUnwillingToPerform:           "Unwilling To Perform",
	ResultLoopDetect:                   "Loop Detect",
	ResultNamingViolation:              "Naming Violation",
	ResultObjectClassViolation:         "Object Class Violation",
	ResultNotAllowedOnNonLeaf:          "Not Allowed On Non Leaf",
	ResultNotAllowedOnRDN:              "Not Allowed On RDN",
	ResultEntryAlreadyExists:           "Entry Already Exists",
	ResultObjectClassModsProhibited:    "Object Class Mods Prohibited",
	ResultAffectsMultipleDSAs:          "Affects Multiple DSAs",
	ResultOther:                        "Other",
	ResultServerDown:                   "Server Down",
	ResultLocalError:                   "Local Error",
	ResultEncodingError:                "Encoding Error",
	ResultDecodingError:                "Decoding Error",
	ResultTimeout:                      "Timeout",
	ResultAuthUnknown:                  "Auth Unknown",
	ResultFilterError:                  "Filter Error",
	ResultUserCanceled:                 "User Canceled",
	ResultParamError:                   "Param Error",
	ResultNoMemory:                     "No Memory",
	ResultConnectError:                 "Connect Error",
	ResultNotSupported:                 "Not Supported",
	ErrorNetwork:                       "Network Error",
	ErrorFilterCompile:                 "Filter Compile Error",
	ErrorFilterDecompile:               "Filter Decompile Error",
	ErrorDebugging:                     "Debugging Error",
	ErrorUnexpectedMessage:             "Unexpected Message",
	ErrorUnexpectedResponse:            "Unexpected Response",
	ErrorEmptyPassword:                 "Empty Password",
}

// Error is an LDAP failure: a server result code other than success, or one
// of the client-side transport/decoding codes.
type Error struct {
	// Err is the underlying error
	Err error
	// ResultCode is the LDAP result code
	ResultCode uint16
	// MatchedDN is the matchedDN returned in the result, if any
	MatchedDN string
	// Packet is the returned packet, if any
	Packet *ber.Packet
}

func (e *Error) Error() string {
	return fmt.Sprintf("LDAP Result Code %d %q: %s", e.ResultCode, ResultCodeMap[e.ResultCode], e.Err.Error())
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates an LDAP error with the given code and underlying error.
func NewError(resultCode uint16, err error) error {
	return &Error{ResultCode: resultCode, Err: err}
}

// GetLDAPError extracts an Error from a BER packet representing an LDAP
// result. Returns nil when the result code is success.
func GetLDAPError(p *ber.Packet) error {
	if p == nil {
		return &Error{ResultCode: ErrorUnexpectedResponse, Err: fmt.Errorf("empty packet")}
	}
	if len(p.Children) < 2 {
		return &Error{ResultCode: ErrorNetwork, Err: fmt.Errorf("invalid packet format"), Packet: p}
	}
	response := p.Children[1]
	if response == nil {
		return &Error{ResultCode: ErrorUnexpectedResponse, Err: fmt.Errorf("empty response in packet"), Packet: p}
	}
	if response.ClassType == ber.ClassApplication && response.TagType == ber.TypeConstructed && len(response.Children) >= 3 {
		code, ok := response.Children[0].Value.(int64)
		if !ok {
			return &Error{ResultCode: ErrorUnexpectedResponse, Err: fmt.Errorf("malformed result code"), Packet: p}
		}
		if code == ResultSuccess {
			return nil
		}
		matchedDN, _ := response.Children[1].Value.(string)
		message, _ := response.Children[2].Value.(string)
		return &Error{
			ResultCode: uint16(code),
			MatchedDN:  matchedDN,
			Err:        fmt.Errorf("%s", message),
			Packet:     p,
		}
	}
	return &Error{ResultCode: ErrorNetwork, Err: fmt.Errorf("invalid packet format"), Packet: p}
}

// IsErrorAnyOf returns true if err is an LDAP error with one of the codes.
func IsErrorAnyOf(err error, codes ...uint16) bool {
	if err == nil {
		return false
	}
	serverError, ok := err.(*Error)
	if !ok {
		return false
	}
	for _, code := range codes {
		if serverError.ResultCode == code {
			return true
		}
	}
	return false
}

// IsErrorWithCode returns true if err is an LDAP error with the given code.
func IsErrorWithCode(err error, code uint16) bool {
	return IsErrorAnyOf(err, code)
}

// isTransient reports whether an error is a transport-family failure the
// manager may retry once after reconnecting. LDAP result codes from the
// server are never transient.
func isTransient(err error) bool {
	return IsErrorAnyOf(err, ResultServerDown, ResultTimeout, ResultConnectError, ErrorNetwork)
}
