// Copyright 2026 Dredd Market Authors. All rights reserved.
// Use of this source code is governed by the project license, which can be
// found in the LICENSE file.

/*
Package anthropic implements the Claude adapter against the Anthropic
Messages API (/v1/messages), mapping one prompt to one normalized
market.ProviderAnswer.

Authentication uses the x-api-key header and the anthropic-version
header rather than bearer auth. A stop_reason of "content_filter" or
"safety" is treated as a safety block.
*/
package anthropic
