/*
Package token implements a minimal asset registry. Every ticker that the
other extensions operate on must be registered here first.

In addition to the name registry known from the currency extension, each
token carries a maximum supply. All issuance must go through the Controller
which keeps track of the amount issued so far. Its Clamp reduces a request
to whatever remains below the cap, and Issue rejects any amount above it.
*/
package token
