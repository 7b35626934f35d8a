package auth

// SystemUserID is the well-known identifier of the in-process system principal,
// used for work performed by the server itself (CLI bootstrap, scheduled jobs).
// No users row exists for it.
const SystemUserID = "00000000-0000-0000-0000-000000000000"
