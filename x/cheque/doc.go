/*
Package cheque implements bearer receipts. A drawer escrows a fixed payout
for a chosen number of anonymous payees. Anyone who learns the cheque code
can claim exactly one payout. The drawer can reverse the unclaimed part at
any time and the chain returns it automatically once the cheque expires.
*/
package cheque
