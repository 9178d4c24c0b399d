package inputagg

// lowerTable and upperTable are the single centralized US-layout table
// that ScancodeToChar reads, replacing several open-coded maps used elsewhere in the
// original source's input handling. Codes follow the Linux evdev KEY_*
// numbering the virtio-input constants use.
var lowerTable = map[uint16]rune{
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5', 7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	16: 'q', 17: 'w', 18: 'e', 19: 'r', 20: 't', 21: 'y', 22: 'u', 23: 'i', 24: 'o', 25: 'p',
	30: 'a', 31: 's', 32: 'd', 33: 'f', 34: 'g', 35: 'h', 36: 'j', 37: 'k', 38: 'l',
	44: 'z', 45: 'x', 46: 'c', 47: 'v', 48: 'b', 49: 'n', 50: 'm',
	57: ' ', 28: '\n', 14: '\b', 15: '\t',
	12: '-', 13: '=', 26: '[', 27: ']', 39: ';', 40: '\'', 41: '`', 43: '\\', 51: ',', 52: '.', 53: '/',
}

var upperTable = map[uint16]rune{
	2: '!', 3: '@', 4: '#', 5: '$', 6: '%', 7: '^', 8: '&', 9: '*', 10: '(', 11: ')',
	16: 'Q', 17: 'W', 18: 'E', 19: 'R', 20: 'T', 21: 'Y', 22: 'U', 23: 'I', 24: 'O', 25: 'P',
	30: 'A', 31: 'S', 32: 'D', 33: 'F', 34: 'G', 35: 'H', 36: 'J', 37: 'K', 38: 'L',
	44: 'Z', 45: 'X', 46: 'C', 47: 'V', 48: 'B', 49: 'N', 50: 'M',
	57: ' ', 28: '\n', 14: '\b', 15: '\t',
	12: '_', 13: '+', 26: '{', 27: '}', 39: ':', 40: '"', 41: '~', 43: '|', 51: '<', 52: '>', 53: '?',
}

// ScancodeToChar maps a KEY_* scancode to its printable character, given
// shift and caps-lock state. Letters honor caps-lock XOR shift; digits
// and punctuation honor shift only. ok is false for scancodes with no
// printable mapping (function keys, modifiers, arrows, etc.).
func ScancodeToChar(code uint16, shift, caps bool) (r rune, ok bool) {
	isLetter := code >= 16 && code <= 50 && (lowerTable[code] >= 'a' && lowerTable[code] <= 'z')
	useUpper := shift
	if isLetter && caps {
		useUpper = !useUpper
	}
	if useUpper {
		r, ok = upperTable[code]
		return r, ok
	}
	r, ok = lowerTable[code]
	return r, ok
}
