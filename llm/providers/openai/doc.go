// Copyright 2026 Dredd Market Authors. All rights reserved.
// Use of this source code is governed by the project license, which can be
// found in the LICENSE file.

/*
Package openai implements the OpenAI chat-completions adapter: one prompt
in, one normalized market.ProviderAnswer out, via POST
/v1/chat/completions with response_format json_object.

Streaming, tool calling and the rest of OpenAI's API surface are out of
scope — a market round is a single synchronous JSON answer.
*/
package openai
