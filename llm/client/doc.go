// Copyright 2026 Dredd Market Authors. All rights reserved.
// Use of this source code is governed by the project license, which can be
// found in the LICENSE file.

/*
Package client assembles one serialized actor per provider (component D):
llm/ratelimit for admission control, llm/circuitbreaker for failure
isolation, an llm/providers.Adapter for the wire call, and llm/retry for
bounded retry of transient errors. The coordinator only ever sees the
market.ProviderClient interface this package satisfies.
*/
package client
