// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every Apronwatch component that
// stamps, schedules, or polls.
//
// Session dating, ledger start times, telemetry time fields, weather
// cache expiry, and the tail reader's poll loop all read time through a
// [Clock]. Binaries pass [Real]; tests pass [Fake] and move time with
// [FakeClock.Advance]:
//
//	fake := clock.Fake(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
//	manager := session.Manager{Root: dir, Clock: fake}
//	go poller.Run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second)
//
// WaitForTimers blocks until the goroutine under test has registered
// its ticker or timer, so the subsequent Advance cannot race with
// registration.
package clock
