package uci

import "strings"

// standardFENFields is the field count of a FEN: board, side to move, castling rights,
// en-passant target, halfmove clock and fullmove number.
const standardFENFields = 6

// AdaptPosition converts the host's extended position encoding into a FEN the engine
// understands by dropping every field after the sixth. This loses the pending move
// restriction the host tracks; engine analysis never takes it into account.
func AdaptPosition(position string) string {
	fields := strings.Fields(position)
	if len(fields) <= standardFENFields {
		return position
	}

	return strings.Join(fields[:standardFENFields], " ")
}
