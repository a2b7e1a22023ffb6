package webhook

import "github.com/stretchr/testify/mock"

// MatchDelivery creates a custom matcher for delivery arguments in mocks
func MatchDelivery(matcher func(Delivery) bool) interface{} {
	return mock.MatchedBy(matcher)
}

// MatchEndpoint creates a custom matcher for endpoint arguments in mocks
func MatchEndpoint(matcher func(Endpoint) bool) interface{} {
	return mock.MatchedBy(matcher)
}
