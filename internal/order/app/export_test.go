package app

// Exposed to the external checkout flow test.

func NewMemStore() Store { return newMemStore() }

type InvMock = invMock
