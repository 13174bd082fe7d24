/* Copyright 2024 the holochain-go authors
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// Address is the content address of an Entry (or a ChainHeader): the
// hex-encoded SHA-256 hash of its contents.
type Address string

// NilAddress is the previous-header address of the first header in a
// source chain.
const NilAddress = Address("")

// Entry is a content-addressed unit of application data.  An Entry is
// immutable once created; everything else refers to an Entry by its
// Address.
type Entry struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Address computes the Entry's content address.
func (e Entry) Address() Address {
	sum := sha256.Sum256([]byte(e.Type + "\x00" + e.Content))
	return Address(hex.EncodeToString(sum[:]))
}

// ChainHeader links an Entry into an agent's source chain.
//
// The chain is append-only.  Each header names the address of its
// entry and the address of the entry committed before it, so the
// whole chain is verifiable from the head alone.
type ChainHeader struct {
	EntryType    string  `json:"type"`
	EntryAddress Address `json:"entry"`

	// Previous is the address of the entry at the head of the
	// chain when this entry was committed.  NilAddress for the
	// first entry.
	Previous Address `json:"previous"`
}
