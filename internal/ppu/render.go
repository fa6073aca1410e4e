package ppu

// dmgShades maps a 2-bit shade index to the canonical DMG 4-shade green
// palette, as RGBA bytes.
var dmgShades = [4][4]byte{
	{224, 248, 208, 255},
	{136, 192, 112, 255},
	{52, 104, 86, 255},
	{8, 24, 32, 255},
}

func shadeFromPalette(reg, colorIndex byte) byte {
	return (reg >> (colorIndex * 2)) & 0x03
}

// renderScanline composes BG, window, and sprite layers for ly into the RGBA
// framebuffer, using the register snapshot captured at mode-3 entry.
func (p *PPU) renderScanline(ly int) {
	lr := p.lineRegs[ly]

	bgEnabled := lr.LCDC&0x01 != 0
	spritesEnabled := lr.LCDC&0x02 != 0
	tallSprites := lr.LCDC&0x04 != 0
	bgMapBase := uint16(0x9800)
	if lr.LCDC&0x08 != 0 {
		bgMapBase = 0x9C00
	}
	tileData8000 := lr.LCDC&0x10 != 0
	winMapBase := uint16(0x9800)
	if lr.LCDC&0x40 != 0 {
		winMapBase = 0x9C00
	}

	var bgci [160]byte
	if bgEnabled {
		bgci = RenderBGScanlineUsingFetcher(p, bgMapBase, tileData8000, lr.SCX, lr.SCY, byte(ly))
	}
	if lr.WindowActive {
		winXStart := int(lr.WX) - 7
		winRow := RenderWindowScanlineUsingFetcher(p, winMapBase, tileData8000, winXStart, lr.WinLine)
		start := winXStart
		if start < 0 {
			start = 0
		}
		for x := start; x < 160; x++ {
			bgci[x] = winRow[x]
		}
	}

	var spci, sattr [160]byte
	if spritesEnabled {
		sprites := p.scanOAM(ly, tallSprites)
		spci, sattr = composeSpriteLine(p, sprites, ly, bgci, tallSprites)
	}

	rowOff := ly * ScreenWidth * 4
	for x := 0; x < ScreenWidth; x++ {
		colorIndex := bgci[x]
		palette := lr.BGP
		if spritesEnabled && spci[x] != 0 {
			colorIndex = spci[x]
			if sattr[x]&spriteAttrPalette != 0 {
				palette = lr.OBP1
			} else {
				palette = lr.OBP0
			}
		}
		shade := shadeFromPalette(palette, colorIndex)
		rgba := dmgShades[shade]
		off := rowOff + x*4
		p.framebuf[off+0] = rgba[0]
		p.framebuf[off+1] = rgba[1]
		p.framebuf[off+2] = rgba[2]
		p.framebuf[off+3] = rgba[3]
	}
}
