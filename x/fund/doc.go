/*
Package fund implements interest bearing deposit pools.

Depositors lock a principal for a fixed period and the chain pays them
yield every maintenance interval. The pool owner earns either a fixed cut
of the depositor payments or whatever the pool made above them, depending
on the pool setup. Overdue deposits are paid out, or extended for another
period for accounts that enabled autorenewal.

The periodic work is driven by the cron ticker: every pool keeps exactly
one scheduled maintenance task alive and payments within a cycle are
applied as separate sub operations whose individual failure never stops
the cycle.
*/
package fund
