// Package mocks provides test doubles for ports interfaces.
//
// These mocks are designed to be simple, thread-safe, in-memory implementations
// suitable for unit testing. Each mock provides:
//
//   - Default behavior backed by in-memory rows set through helper methods
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Call counters for asserting how often the store was hit
//
// # Usage Example
//
//	func TestResolver(t *testing.T) {
//		repo := mocks.NewReportRepository()
//		repo.AddLegacy(domain.LegacyReport{ArtistSlug: "karol-g", WeekEnd: "2025-10-06"})
//
//		r := report.NewResolver(repo, nil, nil)
//		// ... assert resolution behavior
//	}
//
// # Available Mocks
//
//   - MetricsRepository: implements ports.MetricsRepository
//   - ChangeFeed: implements ports.ChangeFeed
//   - ReportRepository: implements ports.ReportRepository
//   - PreferenceRepository: implements ports.PreferenceRepository
package mocks
