// Copyright 2026 Dredd Market Authors. All rights reserved.
// Use of this source code is governed by the project license, which can be
// found in the LICENSE file.

/*
Package providers holds the shared HTTP-facing pieces every model adapter
(openai, anthropic, gemini) builds on: HTTP status to market.Error
classification, error-body extraction, and recovery of a JSON answer from
a reply that isn't pure JSON (fenced code block, trailing commas, line
comments).

# Core types

  - Adapter — the one-call-per-round contract each provider subpackage
    implements.
  - BaseProviderConfig — fields every provider config shares.

# Core functions

  - MapHTTPError / ReadErrorMessage — HTTP failure classification.
  - RecoverJSON / ParseRoundAnswer — malformed-JSON recovery and decoding
    of the round-answer contract onto a market.ProviderAnswer.
*/
package providers
