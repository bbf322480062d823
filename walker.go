package usbdevice

import "go.uber.org/zap"

// walkConfiguration is C3: it parses blob into per-interface and
// per-association byte ranges, driving C2 transitions and child-device
// creation through spawner, per spec.md §4.3.
//
// Failures spawning one child are remembered (best effort, spec.md §4.3/§7:
// "the walker records the last non-OK status and continues") rather than
// aborting the remainder of the walk; the returned error, if any, is the
// last one observed.
func walkConfiguration(parent *Device, blob configBlob, ifTable *interfaceStatusTable, spawner ChildSpawner, log *zap.Logger) error {
	raw := blob.raw
	pos := configDescriptorHeaderLength
	var lastErr error

	for pos < len(raw) {
		hdr, ok := peekDescriptorHeader(raw, pos)
		if !ok {
			break
		}
		if hdr.Length == 0 {
			// Zero bLength terminates the walk defensively (spec.md §4.3
			// edge policy); a well-formed blob never produces this.
			break
		}
		if pos+int(hdr.Length) > len(raw) {
			break
		}

		switch hdr.Type {
		case DescriptorTypeInterfaceAssociation:
			var err error
			pos, err = walkAssociation(parent, raw, pos, hdr, ifTable, spawner, log)
			if err != nil {
				lastErr = err
			}
		case DescriptorTypeInterface:
			fields, ok := decodeInterfaceDescriptorFields(raw, pos)
			if !ok || fields.AlternateSetting != 0 {
				// Not a top-level interface (alternate setting); skip by
				// bLength like any other descriptor at walker level.
				pos += int(hdr.Length)
				continue
			}
			var err error
			pos, err = walkInterface(parent, raw, pos, fields, ifTable, spawner, log)
			if err != nil {
				lastErr = err
			}
		default:
			pos += int(hdr.Length)
		}
	}

	return lastErr
}

// walkAssociation gathers an IAD and the bInterfaceCount top-level
// interfaces it announces, publishing the whole contiguous range as one
// association child. Returns the offset to resume walking at.
func walkAssociation(parent *Device, raw []byte, start int, hdr descriptorHeader, ifTable *interfaceStatusTable, spawner ChildSpawner, log *zap.Logger) (int, error) {
	iad, ok := decodeInterfaceAssociationFields(raw, start)
	if !ok {
		return start + int(hdr.Length), nil
	}
	if iad.InterfaceCount == 0 {
		// Edge policy: zero bInterfaceCount advances to the next descriptor.
		return start + int(hdr.Length), nil
	}

	pos := start + int(hdr.Length)
	seen := 0
	for pos < len(raw) && seen < int(iad.InterfaceCount) {
		next, ok := peekDescriptorHeader(raw, pos)
		if !ok || next.Length == 0 {
			break
		}
		if next.Type == DescriptorTypeInterfaceAssociation {
			break // another IAD begins; stop here
		}
		if next.Type == DescriptorTypeInterface {
			fields, ok := decodeInterfaceDescriptorFields(raw, pos)
			if ok && fields.AlternateSetting == 0 {
				seen++
			}
		}
		pos += int(next.Length)
	}

	assocRange := append([]byte(nil), raw[start:pos]...)
	child, err := spawner.SpawnAssociation(parent, iad.FirstInterface, iad.InterfaceCount, assocRange)
	if err != nil {
		if log != nil {
			log.Warn("interface association child spawn failed",
				zap.Uint8("first_interface", iad.FirstInterface),
				zap.Uint8("interface_count", iad.InterfaceCount),
				zap.Error(err))
		}
		return pos, newError("spawn_association", KindInternal, err)
	}
	// Per spec.md §4.3: "status transitions occur only for the
	// per-interface branch" — an association child does not mark its
	// member interfaces CHILD_DEVICE in the status table. It is still
	// recorded so set_interface/teardown can find it by interface number.
	ifTable.addAssociation(iad.FirstInterface, iad.InterfaceCount, child)
	return pos, nil
}

// walkInterface gathers a top-level interface and its contiguous
// alternate-setting/class-specific descriptors, arbitrating the publish
// race against a concurrent claim_interface per spec.md §4.3/§4.2.
func walkInterface(parent *Device, raw []byte, start int, fields interfaceDescriptorFields, ifTable *interfaceStatusTable, spawner ChildSpawner, log *zap.Logger) (int, error) {
	hdr, _ := peekDescriptorHeader(raw, start)
	pos := start + int(hdr.Length)
	for pos < len(raw) {
		next, ok := peekDescriptorHeader(raw, pos)
		if !ok || next.Length == 0 {
			break
		}
		if next.Type == DescriptorTypeInterface {
			nf, ok := decodeInterfaceDescriptorFields(raw, pos)
			if ok && nf.AlternateSetting == 0 {
				break // next top-level interface begins
			}
		}
		pos += int(next.Length)
	}

	status, ok := ifTable.statusOf(fields.InterfaceNumber)
	if !ok {
		return pos, newError("walk_interface", KindBadState, nil)
	}
	if status != ifAvailable {
		// Already CLAIMED or CHILD_DEVICE; the walker does not re-publish.
		return pos, nil
	}

	ifaceRange := append([]byte(nil), raw[start:pos]...)
	child, err := spawner.SpawnInterface(parent, fields.InterfaceNumber, ifaceRange)
	if err != nil {
		if log != nil {
			log.Warn("interface child spawn failed",
				zap.Uint8("interface_number", fields.InterfaceNumber), zap.Error(err))
		}
		return pos, newError("spawn_interface", KindInternal, err)
	}

	if ifTable.finishChildPublish(fields.InterfaceNumber, child) {
		// A claim_interface call raced in and won; tear the freshly
		// created child back down, per spec.md §4.3.
		if err := spawner.RemoveChild(child); err != nil {
			if log != nil {
				log.Warn("tear down raced child failed",
					zap.Uint8("interface_number", fields.InterfaceNumber), zap.Error(err))
			}
			return pos, newError("spawn_interface", KindBadState, err)
		}
	}

	return pos, nil
}
