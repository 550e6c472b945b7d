// Copyright (c) 2024 The hwconn Authors. All rights reserved.
// This file is part of hardware-wallet-connection. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package typeddata canonicalizes EIP-712 typed data and computes the hashes
// a signing device signs.
//
// Canonicalization keeps the primary type and the types reachable from it,
// fixes the domain type and coerces a missing chain id to mainnet before the
// domain separator and the struct hash are computed.
package typeddata // import "github.com/zeriontech/hardware-wallet-connection/typeddata"

import (
	"bytes"
	"encoding/json"
	stdmath "math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github.com/zeriontech/hardware-wallet-connection/deviceerr"
)

// DomainType is the name of the EIP-712 domain type.
const DomainType = "EIP712Domain"

// MainnetChainID is the chain id used for domains without a usable one.
const MainnetChainID = "0x1"

// Field is a named member of a struct type.
type Field = apitypes.Type

// TypedData is an EIP-712 message as sent by dapps. Domain and Message are
// kept loosely typed since callers pass arbitrary JSON.
type TypedData struct {
	Types       map[string][]Field     `json:"types"`
	PrimaryType string                 `json:"primaryType"`
	Domain      map[string]interface{} `json:"domain"`
	Message     map[string]interface{} `json:"message"`
}

// domainFields lists the domain members in their canonical order.
var domainFields = []Field{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
	{Name: "salt", Type: "bytes32"},
}

// Parse decodes typed data from JSON text. Numbers are kept as decimal
// strings so big integers survive.
func Parse(data []byte) (*TypedData, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var td TypedData
	if err := dec.Decode(&td); err != nil {
		return nil, deviceerr.Malformed("failed to parse typed data input")
	}
	td.Domain, _ = numbersToStrings(td.Domain).(map[string]interface{})
	td.Message, _ = numbersToStrings(td.Message).(map[string]interface{})
	return &td, nil
}

// Decode accepts typed data as JSON text, JSON bytes, a decoded JSON object
// or a TypedData value.
func Decode(raw interface{}) (*TypedData, error) {
	switch v := raw.(type) {
	case *TypedData:
		if v == nil {
			break
		}
		return v, nil
	case TypedData:
		return &v, nil
	case string:
		return Parse([]byte(v))
	case []byte:
		return Parse(v)
	case json.RawMessage:
		return Parse(v)
	case map[string]interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, deviceerr.Malformed("failed to parse typed data input")
		}
		return Parse(data)
	}
	return nil, deviceerr.Malformed("failed to parse typed data input")
}

func numbersToStrings(v interface{}) interface{} {
	switch v := v.(type) {
	case json.Number:
		return v.String()
	case map[string]interface{}:
		for k, e := range v {
			v[k] = numbersToStrings(e)
		}
		return v
	case []interface{}:
		for i, e := range v {
			v[i] = numbersToStrings(e)
		}
		return v
	}
	return v
}

// Prepare returns the canonical form of td without hashing it: the type set
// reduced to the primary type, its dependencies and the domain type, the
// domain with a coerced chain id, and the message without undeclared fields.
// td is not modified.
func Prepare(td *TypedData) (*TypedData, error) {
	if td == nil {
		return nil, deviceerr.Malformed("no typed data")
	}
	if td.PrimaryType == "" {
		return nil, deviceerr.Malformed("typed data has no primary type")
	}
	if _, ok := td.Types[td.PrimaryType]; !ok {
		return nil, deviceerr.Malformed("primary type %q is not defined", td.PrimaryType)
	}

	types := make(map[string][]Field)
	for name := range Reachable(td.Types, td.PrimaryType) {
		types[name] = td.Types[name]
	}

	domainType, supplied := td.Types[DomainType]
	domain := make(map[string]interface{}, len(td.Domain)+1)
	for k, v := range td.Domain {
		domain[k] = v
	}
	if !supplied || hasField(domainType, "chainId") {
		if !usableChainID(domain["chainId"]) {
			domain["chainId"] = MainnetChainID
		} else {
			domain["chainId"] = integerString(domain["chainId"])
		}
	}
	if !supplied {
		domainType = synthesizeDomainType(domain)
	}
	types[DomainType] = domainType

	message, _ := project(types, td.PrimaryType, td.Message).(map[string]interface{})
	return &TypedData{
		Types:       types,
		PrimaryType: td.PrimaryType,
		Domain:      restrict(domain, domainType),
		Message:     message,
	}, nil
}

// project returns a copy of value that only keeps the fields declared by typ,
// descending into struct fields and arrays. Values of atomic types are
// returned as is.
func project(types map[string][]Field, typ string, value interface{}) interface{} {
	if i := strings.LastIndexByte(typ, '['); i >= 0 && strings.HasSuffix(typ, "]") {
		items, ok := value.([]interface{})
		if !ok {
			return value
		}
		res := make([]interface{}, len(items))
		for j, item := range items {
			res[j] = project(types, typ[:i], item)
		}
		return res
	}
	fields, ok := types[typ]
	if !ok {
		return value
	}
	obj, ok := value.(map[string]interface{})
	if !ok {
		return value
	}
	res := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := obj[f.Name]; ok {
			res[f.Name] = project(types, f.Type, v)
		}
	}
	return res
}

// Reachable returns primary and all types reachable from it through field
// type references. Array suffixes are stripped from field types.
func Reachable(types map[string][]Field, primary string) map[string]struct{} {
	found := make(map[string]struct{})
	stack := []string{primary}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := found[name]; ok {
			continue
		}
		fields, ok := types[name]
		if !ok {
			continue
		}
		found[name] = struct{}{}
		for _, f := range fields {
			stack = append(stack, baseType(f.Type))
		}
	}
	return found
}

// baseType strips array suffixes, e.g. Person[2][] becomes Person.
func baseType(typ string) string {
	if i := strings.IndexByte(typ, '['); i >= 0 {
		return typ[:i]
	}
	return typ
}

func synthesizeDomainType(domain map[string]interface{}) []Field {
	fields := make([]Field, 0, len(domainFields))
	for _, f := range domainFields {
		if _, ok := domain[f.Name]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}

func hasField(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func restrict(domain map[string]interface{}, fields []Field) map[string]interface{} {
	res := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := domain[f.Name]; ok {
			res[f.Name] = v
		}
	}
	return res
}

// usableChainID reports whether v is a chain id that is kept as is. Missing,
// null, empty, zero and NaN values are not.
func usableChainID(v interface{}) bool {
	switch v := v.(type) {
	case nil:
		return false
	case string:
		return v != "" && !strings.EqualFold(v, "nan")
	case float64:
		return v != 0 && !stdmath.IsNaN(v)
	case json.Number:
		return v.String() != "0"
	case int:
		return v != 0
	case int64:
		return v != 0
	case uint64:
		return v != 0
	}
	return true
}

// integerString renders Go integers as decimal strings, which the hashing
// accepts. Other values are returned unchanged.
func integerString(v interface{}) interface{} {
	switch v := v.(type) {
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case *big.Int:
		return v.String()
	}
	return v
}

// Canonical is the hashed canonical form of typed data.
type Canonical struct {
	DomainSeparator common.Hash
	StructHash      common.Hash

	PrimaryType string
	Types       apitypes.Types // retained types including the domain type
	DomainType  []Field
	Domain      map[string]interface{}
}

// Canonicalize prepares td and computes the domain separator and the hash of
// the message. All input problems are reported as malformed input errors.
func Canonicalize(td *TypedData) (*Canonical, error) {
	prep, err := Prepare(td)
	if err != nil {
		return nil, err
	}

	typed := apitypes.TypedData{
		Types:       apitypes.Types(prep.Types),
		PrimaryType: prep.PrimaryType,
		Domain:      apiDomain(prep.Domain),
		Message:     prep.Message,
	}
	ds, err := typed.HashStruct(DomainType, prep.Domain)
	if err != nil {
		return nil, malformed(err, "hashing domain")
	}
	message := prep.Message
	if message == nil {
		message = map[string]interface{}{}
	}
	sh, err := typed.HashStruct(prep.PrimaryType, message)
	if err != nil {
		return nil, malformed(err, "hashing message")
	}

	return &Canonical{
		DomainSeparator: common.BytesToHash(ds),
		StructHash:      common.BytesToHash(sh),
		PrimaryType:     prep.PrimaryType,
		Types:           typed.Types,
		DomainType:      prep.Types[DomainType],
		Domain:          prep.Domain,
	}, nil
}

// Hash canonicalizes td and returns its signing digest.
func Hash(td *TypedData) (common.Hash, error) {
	c, err := Canonicalize(td)
	if err != nil {
		return common.Hash{}, err
	}
	return c.Digest(), nil
}

// Digest returns keccak256(0x19 0x01 ‖ domainSeparator ‖ structHash), the
// hash that is signed.
func (c *Canonical) Digest() common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, c.DomainSeparator[:], c.StructHash[:])
}

func malformed(err error, context string) error {
	return deviceerr.Malformed("%s", errors.WithMessage(err, context).Error())
}

// apiDomain fills the typed domain, which is only used for validation.
// Hashing works on the loosely typed domain map.
func apiDomain(domain map[string]interface{}) apitypes.TypedDataDomain {
	var d apitypes.TypedDataDomain
	d.Name, _ = domain["name"].(string)
	d.Version, _ = domain["version"].(string)
	d.VerifyingContract, _ = domain["verifyingContract"].(string)
	d.Salt, _ = domain["salt"].(string)
	if v, ok := domain["chainId"]; ok && v != nil {
		id := new(big.Int)
		switch v := v.(type) {
		case string:
			if b, ok := math.ParseBig256(v); ok {
				id = b
			}
		case float64:
			id.SetInt64(int64(v))
		}
		d.ChainId = (*math.HexOrDecimal256)(id)
	}
	return d
}
