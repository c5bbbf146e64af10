// Copyright 2025 The Weft Authors
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

package tool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/tool"
)

func TestValidateOutboundURLRejectsBlockedAddresses(t *testing.T) {
	blocked := []string{
		"http://127.0.0.1/admin",
		"http://localhost:8080/",
		"http://10.0.0.5/metadata",
		"http://172.16.1.1/",
		"http://192.168.1.1/router",
		"http://169.254.169.254/latest/meta-data/",
		"http://0.0.0.0/",
		"http://[::1]/",
		"http://100.64.0.1/",
		"http://240.0.0.1/",
	}

	for _, raw := range blocked {
		err := tool.ValidateOutboundURL(raw, false)
		assert.Error(t, err, "expected %s to be blocked", raw)
	}
}

func TestValidateOutboundURLAllowPrivateBypass(t *testing.T) {
	assert.NoError(t, tool.ValidateOutboundURL("http://127.0.0.1:9090/debug", true))
	assert.NoError(t, tool.ValidateOutboundURL("http://192.168.1.10/", true))
}

func TestValidateOutboundURLRejectsBadSchemes(t *testing.T) {
	for _, raw := range []string{
		"ftp://example.com/file",
		"file:///etc/passwd",
		"gopher://example.com/",
	} {
		err := tool.ValidateOutboundURL(raw, false)
		require.Error(t, err, raw)
	}
}

func TestValidateOutboundURLRejectsEmptyHost(t *testing.T) {
	assert.Error(t, tool.ValidateOutboundURL("http:///path-only", false))
	assert.Error(t, tool.ValidateOutboundURL("not a url at all", false))
}
