package session

func setNoFile(value uint64) error {
	return nil
}
