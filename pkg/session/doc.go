/*
Package session implements session persistence orchestration.

Manager serializes every operation on a session id: a reference-counted
in-process lock orders concurrent steps on one replica, and an optional
distributed locker extends that across replicas. Waiting for either lock
is bounded; exceeding the bound yields a *domain.SessionLockTimeoutError
so the transport can retry the delivery.
*/
package session
