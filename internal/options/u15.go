package options

// U15 reuses the STC15 option layout: the U15 dialect is the same silicon
// generation carried over a USB bulk channel instead of UART, and spec §4.6
// names no option differences for it beyond "no handshake baud, trim
// unsupported" which are transport/trim concerns, not option-byte layout.
var U15 = P15
