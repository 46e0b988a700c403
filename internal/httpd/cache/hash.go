// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

// hashPath computes a djb2-style 64-bit hash of a request path using the
// h = h*31 + b recurrence, wrapping naturally on overflow.
func hashPath(path string) uint64 {
	var h uint64
	for i := 0; i < len(path); i++ {
		h = h*31 + uint64(path[i])
	}
	return h
}
