package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Code is the type representing a namespace error code.
type Code[MT any] struct {
	Code uint16
	Name string
}

// New creates a new error with the given code and the message
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates a new Error with the given code and the cause error
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

// Match reports whether err, or any error it wraps, carries this code.
// When it does, the attached metadata is returned as well.
func (c Code[MT]) Match(err error) (MT, bool) {
	var impl *ErrorImpl[MT]
	if stderrors.As(err, &impl) && impl.code.Code == c.Code {
		return impl.metadata, true
	}
	var zero MT
	return zero, false
}

// Is reports whether err carries this code, whatever its metadata type.
func (c Code[MT]) Is(err error) bool {
	typed, ok := As(err)
	return ok && typed.Code() == c.Code
}

// As returns the typed error carried by err, if any.
func As(err error) (Error, bool) {
	var typed Error
	if !stderrors.As(err, &typed) {
		return nil, false
	}
	return typed, true
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

type Error interface {
	error
	Log() *log.Entry
	Code() uint16
	CodeName() string
	Metadata() map[string]string
}

type TypedError[MT any] interface {
	Error
	WithMetadata(MT) TypedError[MT]
}

// ErrorImpl is the default concrete implementation of TypedError.
type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithField("name", e.code.Name).
		WithField("code", e.code.Code).
		WithField("metadata", e.metadata)
}

func (e *ErrorImpl[MT]) Metadata() map[string]string {
	// convert any metadata to map[string]string
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err == nil {
		var genericMap map[string]any
		if err := json.Unmarshal(buf, &genericMap); err == nil {
			for k, v := range genericMap {
				vStr := ""
				if v != nil {
					vStr = fmt.Sprintf("%v", v)
				}
				metadata[k] = vStr
			}
		}
	}
	return metadata
}

func (e *ErrorImpl[MT]) Code() uint16 {
	return e.code.Code
}

func (e *ErrorImpl[MT]) CodeName() string {
	return e.code.Name
}

// Error() implements the error interface.
func (e *ErrorImpl[MT]) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *ErrorImpl[MT]) Unwrap() error {
	return e.cause
}

func (e *ErrorImpl[MT]) WithMetadata(metadata MT) TypedError[MT] {
	e.metadata = metadata
	return e
}

type QueryMetadata struct {
	Query   string `json:"query"`
	Address string `json:"address,omitempty"`
}

type MalformedResponseMetadata struct {
	Query string `json:"query"`
	Line  string `json:"line"`
}

type BuildMetadata struct {
	TxFile string `json:"tx_file"`
	Output string `json:"output,omitempty"`
}

type MinUTXOMetadata struct {
	TxFile      string `json:"tx_file"`
	MinLovelace uint64 `json:"min_lovelace"`
}

type TxFileMetadata struct {
	TxFile string `json:"tx_file"`
}

type MetadataUnavailableMetadata struct {
	TokenID int    `json:"token_id"`
	Path    string `json:"path,omitempty"`
}

type InsufficientFundsMetadata struct {
	Outpoint string `json:"outpoint"`
	Gross    uint64 `json:"gross"`
	Fee      uint64 `json:"fee"`
}

type PayerMetadata struct {
	Txid string `json:"txid"`
}

type CheckpointMetadata struct {
	Phase       string `json:"phase"`
	NextTokenID int    `json:"next_token_id"`
	Watermark   int    `json:"watermark"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR"}
var CHAIN_QUERY_FAILED = Code[QueryMetadata]{1, "CHAIN_QUERY_FAILED"}
var MALFORMED_LEDGER_RESPONSE = Code[MalformedResponseMetadata]{2, "MALFORMED_LEDGER_RESPONSE"}
var BUILD_REJECTED = Code[BuildMetadata]{3, "BUILD_REJECTED"}
var MIN_UTXO_VIOLATION = Code[MinUTXOMetadata]{4, "MIN_UTXO_VIOLATION"}
var FEE_ESTIMATION_FAILED = Code[TxFileMetadata]{5, "FEE_ESTIMATION_FAILED"}
var SIGNING_FAILED = Code[TxFileMetadata]{6, "SIGNING_FAILED"}
var SUBMIT_REJECTED = Code[TxFileMetadata]{7, "SUBMIT_REJECTED"}
var METADATA_UNAVAILABLE = Code[MetadataUnavailableMetadata]{8, "METADATA_UNAVAILABLE"}

var INSUFFICIENT_FUNDS_FOR_REFUND = Code[InsufficientFundsMetadata]{
	9,
	"INSUFFICIENT_FUNDS_FOR_REFUND",
}

var PAYER_UNRESOLVED = Code[PayerMetadata]{10, "PAYER_UNRESOLVED"}
var CHECKPOINT_NOT_PERSISTED = Code[CheckpointMetadata]{11, "CHECKPOINT_NOT_PERSISTED"}
