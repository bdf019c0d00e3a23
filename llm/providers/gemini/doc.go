// Copyright 2026 Dredd Market Authors. All rights reserved.
// Use of this source code is governed by the project license, which can be
// found in the LICENSE file.

/*
Package gemini implements the Google Gemini adapter against
generativelanguage.googleapis.com's generateContent endpoint, mapping one
prompt to one normalized market.ProviderAnswer.

finishReason values of SAFETY, RECITATION or OTHER are treated as a
safety block rather than a parseable answer.
*/
package gemini
